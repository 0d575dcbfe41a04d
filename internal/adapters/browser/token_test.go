package browser

import (
	"net/url"
	"regexp"
	"testing"
)

func TestTokenFromURL(t *testing.T) {
	re := regexp.MustCompile(`(?i)/GetVectorLayer\?QPS=`)

	tests := []struct {
		name string
		url  string
		want string
	}{
		{"matching request", "https://beacon.example/api/beaconCore/GetVectorLayer?QPS=abc123", "abc123"},
		{"case insensitive", "https://beacon.example/api/beaconcore/getvectorlayer?QPS=xyz", "xyz"},
		{"escaped token", "https://beacon.example/api/GetVectorLayer?QPS=a%2Bb", "a+b"},
		{"other endpoint", "https://beacon.example/api/GetParcel?QPS=abc", ""},
		{"no query", "https://beacon.example/index.html", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TokenFromURL(tt.url, re, "QPS"); got != tt.want {
				t.Errorf("TokenFromURL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTileURL(t *testing.T) {
	got, err := tileURL("https://beacon.example/api/GetVectorLayer", "QPS", "tok/1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("parse %q: %v", got, err)
	}
	if u.Query().Get("QPS") != "tok/1" {
		t.Errorf("QPS = %q, want tok/1", u.Query().Get("QPS"))
	}
	if u.Path != "/api/GetVectorLayer" {
		t.Errorf("path = %q", u.Path)
	}
}
