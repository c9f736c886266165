package catalog

import "testing"

func TestPlainText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"no markup", "Sissejuhatus masinõppesse", "Sissejuhatus masinõppesse"},
		{"comparison is not markup", "EAP < 6", "EAP < 6"},
		{"paragraphs", "<p>Esimene lõik.</p><p>Teine   lõik.</p>", "Esimene lõik.\nTeine lõik."},
		{"list and entities", "<ul><li>R&amp;D</li><li>ML</li></ul>", "- R&D\n- ML"},
		{"line breaks", "rida üks<br>rida kaks", "rida üks\nrida kaks"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := plainText(tt.raw); got != tt.want {
				t.Errorf("plainText(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeHeader(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{"Õppekeeled", "oppekeeled"},
		{" Aine kood ", "aine_kood"},
		{"\ufeffaine_kood", "aine_kood"},
		{"Õpiväljundid", "opivaljundid"},
		{"description-en", "description_en"},
		{"Eesmärgid", "eesmargid"},
	}
	for _, tt := range tests {
		if got := normalizeHeader(tt.in); got != tt.want {
			t.Errorf("normalizeHeader(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
