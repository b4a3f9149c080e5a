package ring

import "testing"

func TestRing_RoundRobin(t *testing.T) {
	r := New([]string{"http://a", "http://b", "http://c"})

	var got []string
	for i := 0; i < 6; i++ {
		idx := r.Pick(100)
		got = append(got, r.Endpoint(idx).Name)
	}

	want := []string{"http://a", "http://b", "http://c", "http://a", "http://b", "http://c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dispatch sequence = %v, want %v", got, want)
		}
	}
}

func TestRing_SkipsCoolingEndpoint(t *testing.T) {
	r := New([]string{"http://a", "http://b"})

	r.CoolDown(0, 100, 30) // a cools until 130

	idx := r.Pick(100)
	if r.Endpoint(idx).Name != "http://b" {
		t.Fatalf("expected b to be picked while a cools, got %s", r.Endpoint(idx).Name)
	}
}

func TestRing_AllCoolingStillMakesProgress(t *testing.T) {
	r := New([]string{"http://a", "http://b", "http://c"})

	for _, ep := range []int{0, 1, 2} {
		r.CoolDown(ep, 100, 30)
	}

	// Every endpoint is cooling; Pick must still terminate and return
	// something rather than loop forever.
	idx := r.Pick(100)
	if idx < 0 || idx >= r.Len() {
		t.Fatalf("Pick returned out-of-range index %d", idx)
	}
}

func TestRing_ZeroEndpointsPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic constructing Ring with no endpoints")
		}
	}()
	New(nil)
}

func TestRing_BuildURL(t *testing.T) {
	r := New([]string{"http://host:9200"})
	idx := r.Pick(0)
	if got := r.BuildURL(idx, "/_bulk"); got != "http://host:9200/_bulk" {
		t.Fatalf("BuildURL = %q", got)
	}
}
