package contact

import "testing"

func TestExtract(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		region string
		want   Contact
		found  bool
	}{
		{"email", "reach me at a@b.com", "", Contact{"a@b.com", KindEmail}, true},
		{"email wins over phone", "a@b.com or +1 415 555 0100", "", Contact{"a@b.com", KindEmail}, true},
		{"international phone", "call +1 415 555 0100", "", Contact{"+14155550100", KindPhone}, true},
		{"double zero prefix", "my number 0044 20 7946 0958", "", Contact{"+442079460958", KindPhone}, true},
		{"national with region", "(415) 555-0100 anytime", "US", Contact{"+14155550100", KindPhone}, true},
		{"handle", "find me @Sales_Team on insta", "", Contact{"@sales_team", KindHandle}, true},
		{"trailing time not glued on", "call +1 415 555 0100 5pm", "US", Contact{"+14155550100", KindPhone}, true},
		{"trailing count not glued on", "+44 20 7946 0958 2 times", "", Contact{"+442079460958", KindPhone}, true},
		{"too few digits", "room 12345", "", Contact{}, false},
		{"nothing", "no contact here", "", Contact{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Extract(tt.text, tt.region)
			if ok != tt.found {
				t.Fatalf("expected found=%v, got %v (%+v)", tt.found, ok, got)
			}
			if got != tt.want {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestLooksMalformed(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"no contact here", false},
		{"reach me at a@b.com", false},
		{"my mail is anna@gmail", true},
		{"my number is +7 999 123", true},
		{"call me on (495) 12-34-5", true},
		{"we opened 2019-2023, 10 staff", false},
		{"order 123456789 is late", false},
		{"call 12345", false},
		{"call +1 415 555 0100", false},
	}
	for _, tt := range tests {
		if got := LooksMalformed(tt.text); got != tt.want {
			t.Fatalf("LooksMalformed(%q) expected %v, got %v", tt.text, tt.want, got)
		}
	}
}
