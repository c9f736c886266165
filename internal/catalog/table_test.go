package catalog

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domerrors "github.com/garyellow/ut-course-advisor/internal/errors"
)

func TestLoadCourses_CSV(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "courses.csv", sampleCSV)

	courses, available, err := LoadCourses(context.Background(), path, "")
	require.NoError(t, err)
	require.Len(t, courses, 3)

	ml := courses[0]
	assert.Equal(t, "LTAT.01.001", ml.Code)
	assert.Equal(t, "Machine Learning", ml.NameEN.String())
	credits, ok := ml.Credits.Get()
	assert.True(t, ok)
	assert.Equal(t, 6.0, credits)
	assert.Equal(t, []string{"eesti keel", "inglise keel"}, ml.Languages)
	assert.Equal(t, []string{"Tartu"}, ml.Cities)

	art := courses[1]
	assert.False(t, art.Credits.IsSet(), "nan credits must be absent")
	assert.Equal(t, "medieval art history", art.Description.String())

	stats := courses[2]
	assert.Equal(t, "4.5", stats.Credits.String())
	assert.False(t, stats.Grading.IsSet())
	assert.False(t, stats.Description.IsSet())

	assert.True(t, available[FacetSemester])
	assert.True(t, available[FacetCredits])
	assert.True(t, available[FacetLanguages])
	assert.True(t, available[FacetCities])
	assert.False(t, available[FacetDomains])
	assert.False(t, available[FacetDeliveryModes])
}

func TestLoadCourses_EnglishHeaders(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "courses.csv", "Code,Credits,Study Level,Domain,Description\nX1,3,bachelor,informatics,text\n")

	courses, available, err := LoadCourses(context.Background(), path, "")
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, "X1", courses[0].Code)
	assert.Equal(t, []string{"bachelor"}, courses[0].StudyLevels)
	assert.Equal(t, []string{"informatics"}, courses[0].Domains)
	assert.True(t, available[FacetStudyLevels])
	assert.False(t, available[FacetSemester])
}

func TestLoadCourses_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"missing file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.csv") }},
		{"empty file", func(t *testing.T) string { return writeFile(t, "empty.csv", "") }},
		{"missing description column", func(t *testing.T) string {
			return writeFile(t, "courses.csv", "aine_kood,eap\nA1,3\n")
		}},
		{"missing sqlite file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "courses.db") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := LoadCourses(context.Background(), tt.path(t), "courses")
			require.Error(t, err)
			assert.True(t, errors.Is(err, domerrors.ErrDataUnavailable), "got %v", err)
		})
	}
}

func TestLoadCourses_SQLite(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "courses.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE courses (aine_kood TEXT, eap REAL, semester TEXT, oppeviis TEXT, description TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO courses VALUES
		('A1', 3, 'kevad', 'päevaõpe', 'first'),
		('B2', NULL, 'sügis', 'e-õpe; sessioonõpe', 'second')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	courses, available, err := LoadCourses(context.Background(), path, "courses")
	require.NoError(t, err)
	require.Len(t, courses, 2)
	assert.Equal(t, "A1", courses[0].Code)
	assert.Equal(t, "3", courses[0].Credits.String())
	assert.False(t, courses[1].Credits.IsSet())
	assert.Equal(t, []string{"e-õpe", "sessioonõpe"}, courses[1].DeliveryModes)
	assert.True(t, available[FacetDeliveryModes])

	_, _, err = LoadCourses(context.Background(), path, "courses; DROP TABLE courses")
	assert.ErrorIs(t, err, domerrors.ErrDataUnavailable)
}
