package geocode

import "testing"

func TestBuildQuery(t *testing.T) {
	got := BuildQuery("12 rue de la Paix", "75002", "Paris", "FR")
	want := "12 rue de la Paix, 75002, Paris, FR"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuildQuerySkipsBlanks(t *testing.T) {
	got := BuildQuery("12 rue de la Paix", "", "  ", "FR")
	want := "12 rue de la Paix, FR"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestParseNominatimItems(t *testing.T) {
	items := []nominatimItem{
		{Lat: "48.8566", Lon: "2.3522"},
	}
	res, err := parseNominatimItems(items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Lat != 48.8566 || res.Lon != 2.3522 {
		t.Fatalf("unexpected coordinates: %+v", res)
	}
}

func TestParseNominatimItemsEmpty(t *testing.T) {
	if _, err := parseNominatimItems(nil); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
