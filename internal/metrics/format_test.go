package metrics

import "testing"

func TestHumanFormats(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{HBytes(999), "999B"},
		{HBytes(3848), "3.85KB"},
		{HBytes(2_500_000), "2.50MB"},
		{HBytes(7e9), "7.00GB"},
		{HBytes(1e13), "10.00TB"},
		{HCount(100), "100"},
		{HCount(1500), "1.50K"},
		{HCount(2e6), "2.00M"},
		{HCount(3e9), "3.00G"},
		{HRate(99.5), "99.50"},
		{HRate(384800), "384.80K"},
		{HRate(3.2e6), "3.20M"},
		{HRate(5e9), "5.00G"},
	}
	for i, tc := range tests {
		if tc.got != tc.want {
			t.Fatalf("test %d: got %q, want %q", i, tc.got, tc.want)
		}
	}
}
