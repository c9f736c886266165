package langdetect

import "testing"

func TestDetect(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		text string
		want Locale
	}{
		{"Estonian request", "soovin õppida", Estonian},
		{"English request", "I want to find", English},
		{"Estonian question", "Mis kursusi on masinõppe kohta?", Estonian},
		{"English question", "Which courses on machine learning are taught in spring?", English},
		{"upper case Estonian", "SOOVIN ÕPPIDA PROGRAMMEERIMIST", Estonian},
		{"decomposed diacritics", "soovin õppida", Estonian},
		{"tie without diacritics", "LTAT.01.001", English},
		{"tie with diacritics", "masinõpe", Estonian},
		{"empty", "", English},
		{"punctuation only", "?!... 123", English},
		{"mixed leaning English", "I want to learn about andmeteadus", English},
		{"mixed leaning Estonian", "Ma tahan õppida machine learning", Estonian},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Detect(tt.text); got != tt.want {
				t.Errorf("Detect(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestDetect_Deterministic(t *testing.T) {
	t.Parallel()
	text := "Kas on mõni kursus about data science?"
	first := Detect(text)
	for range 100 {
		if got := Detect(text); got != first {
			t.Fatalf("Detect(%q) changed from %q to %q", text, first, got)
		}
	}
}

func TestWordListsDisjoint(t *testing.T) {
	t.Parallel()
	for w := range estonianWords {
		if _, ok := englishWords[w]; ok {
			t.Errorf("%q is listed for both languages", w)
		}
	}
}

func TestParseLocale(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    Locale
		wantErr bool
	}{
		{"et", Estonian, false},
		{" ET ", Estonian, false},
		{"eesti", Estonian, false},
		{"en", English, false},
		{"English", English, false},
		{"en-GB", English, false},
		{"", "", true},
		{"fi", "", true},
	}
	for _, tt := range tests {
		got, err := ParseLocale(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLocale(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLocale(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
