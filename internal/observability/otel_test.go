package observability

import "testing"

func TestTracingIsOptIn(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "")
	if enabled() {
		t.Fatal("tracing should be off without OTEL_ENABLED")
	}
	t.Setenv("OTEL_ENABLED", "true")
	if !enabled() {
		t.Fatal("OTEL_ENABLED=true should enable tracing")
	}
}

func TestSampleRatioBounds(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
	}{
		{"", 0.1},
		{"bogus", 0.1},
		{"0.5", 0.5},
		{"-1", 0},
		{"2.5", 1},
	}
	for _, tc := range cases {
		t.Setenv("OTEL_SAMPLER_RATIO", tc.raw)
		if got := sampleRatio(); got != tc.want {
			t.Fatalf("sampleRatio(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}
