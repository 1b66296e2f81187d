package crm

import "testing"

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"89991234567", "79991234567"},
		{"79991234567", "79991234567"},
		{"+7 999 123-45-67", "79991234567"},
		{"9991234567", "79991234567"},
		{"8 (999) 123-45-67", "79991234567"},
		{"12345", ""},
		{"", ""},
		{"abc", ""},
		{"1234567890", ""},
	}
	for _, c := range cases {
		if got := NormalizePhone(c.in); got != c.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizePhoneIdempotent(t *testing.T) {
	inputs := []string{"89991234567", "+7 999 123-45-67", "9991234567"}
	for _, in := range inputs {
		once := NormalizePhone(in)
		if once == "" {
			t.Fatalf("NormalizePhone(%q) = empty", in)
		}
		if twice := NormalizePhone(once); twice != once {
			t.Errorf("NormalizePhone(%q) = %q, not a fixed point", once, twice)
		}
	}
}
