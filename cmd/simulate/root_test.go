package simulate

import (
	"testing"

	"github.com/ValentinKolb/hRPC/rpc/common"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    common.FwVersionPayload
		wantErr bool
	}{
		{in: "1.0.0", want: common.FwVersionPayload{Major: 1}},
		{in: "2.13.7", want: common.FwVersionPayload{Major: 2, Minor: 13, Patch: 7}},
		{in: "1.0", wantErr: true},
		{in: "1.0.0.0", wantErr: true},
		{in: "1.x.0", wantErr: true},
		{in: "-1.0.0", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseVersion(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %v", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
