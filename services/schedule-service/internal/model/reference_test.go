package model

import (
	"testing"
	"time"
)

func TestReferenceDeleted(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		got  bool
		want bool
	}{
		{"live user", User{}.Deleted(), false},
		{"user flag only", User{IsDeleted: true}.Deleted(), true},
		{"user timestamp only", User{DeletedAt: &at}.Deleted(), true},
		{"category flag only", Category{IsDeleted: true}.Deleted(), true},
		{"category timestamp only", Category{DeletedAt: &at}.Deleted(), true},
		{"product flag only", Product{IsDeleted: true}.Deleted(), true},
		{"live product", Product{}.Deleted(), false},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("%s: Deleted() = %v, want %v", tc.name, tc.got, tc.want)
		}
	}
}
