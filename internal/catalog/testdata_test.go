package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleCSV = `aine_kood,nimi_et,nimi_en,eap,semester,hindamisskaala,oppekeeled,linn,description
LTAT.01.001,Masinõpe,Machine Learning,6,kevad,Eristav (A-F),"eesti keel, inglise keel",Tartu,introduction to supervised learning
KUKU.02.002,Keskaja kunst,Medieval Art,nan,sügis,Mitteeristav,eesti keel,Tartu,<p>medieval art history</p>
MTMS.03.003,Statistika,Statistics,"4,5",Kevad,,inglise keel,Tallinn,
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func writeEmbeddings(t *testing.T, vectors [][]float32) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "embeddings.bin.zst")
	if err := WriteEmbeddingsFile(path, vectors); err != nil {
		t.Fatalf("WriteEmbeddingsFile() = %v", err)
	}
	return path
}

func unitVectors(n, dim int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, dim)
		out[i][i%dim] = 1
	}
	return out
}
