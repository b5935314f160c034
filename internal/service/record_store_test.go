package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-marks-api/internal/models"
	"github.com/noah-isme/sma-marks-api/internal/repository"
	appErrors "github.com/noah-isme/sma-marks-api/pkg/errors"
)

type mockRecordRepo struct {
	loadResult *models.LoadResult
	loadErr    error
	saveErr    error
	saved      [][]models.StudentRecord
	sources    []string
}

func (m *mockRecordRepo) Load(ctx context.Context, source string) (*models.LoadResult, error) {
	m.sources = append(m.sources, source)
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.loadResult == nil {
		return &models.LoadResult{Source: source}, nil
	}
	return m.loadResult, nil
}

func (m *mockRecordRepo) Save(ctx context.Context, source string, records []models.StudentRecord) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, records)
	return nil
}

func newFileStore(t *testing.T, content string) (*RecordStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "studentMarks.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	store := NewRecordStore(repository.NewRecordFileRepository(zap.NewNop()), validator.New(), zap.NewNop(), NewMetricsService())
	_, err := store.Load(context.Background(), path)
	require.NoError(t, err)
	return store, path
}

func errorCode(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	return appErrors.FromError(err).Code
}

func validAdd(code string) AddRecordRequest {
	return AddRecordRequest{Code: code, Name: "Student " + code, CW1: 10, CW2: 10, CW3: 10, Exam: 50}
}

func codes(records []models.StudentRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Code)
	}
	return out
}

func TestRecordStoreLoadAndAdd(t *testing.T) {
	store, path := newFileStore(t, "1\n1001,Ada Lovelace,20,18,19,95\n")

	rec, err := store.AddRecord(context.Background(), AddRecordRequest{Code: " 1002 ", Name: " Alan Turing ", CW1: 15, CW2: 14, CW3: 13, Exam: 70})
	require.NoError(t, err)
	assert.Equal(t, "1002", rec.Code)
	assert.Equal(t, "Alan Turing", rec.Name)
	assert.Equal(t, []string{"1001", "1002"}, codes(store.Records()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "2\n1001,Ada Lovelace,20,18,19,95\n1002,Alan Turing,15,14,13,70\n", string(raw))
}

func TestRecordStoreAddRejections(t *testing.T) {
	cases := []struct {
		name    string
		req     AddRecordRequest
		code    string
		message string
	}{
		{"non numeric code", validAdd("12AB"), appErrors.ErrValidation.Code, "code must be a 4-digit number (1000-9999)"},
		{"short code", validAdd("99"), appErrors.ErrValidation.Code, "code must be a 4-digit number (1000-9999)"},
		{"leading zero code", validAdd("0999"), appErrors.ErrValidation.Code, "code must be a 4-digit number (1000-9999)"},
		{"duplicate code", validAdd("1001"), appErrors.ErrConflict.Code, "a student with code 1001 already exists"},
		{"coursework too high", AddRecordRequest{Code: "1005", Name: "X", CW1: 21}, appErrors.ErrValidation.Code, "cw1 must be between 0 and 20"},
		{"coursework negative", AddRecordRequest{Code: "1005", Name: "X", CW3: -1}, appErrors.ErrValidation.Code, "cw3 must be between 0 and 20"},
		{"exam negative", AddRecordRequest{Code: "1005", Name: "X", Exam: -1}, appErrors.ErrValidation.Code, "exam must be between 0 and 100"},
		{"exam too high", AddRecordRequest{Code: "1005", Name: "X", Exam: 101}, appErrors.ErrValidation.Code, "exam must be between 0 and 100"},
		{"blank name", AddRecordRequest{Code: "1005", Name: "   "}, appErrors.ErrValidation.Code, "name is required"},
		{"empty fields before code format", AddRecordRequest{Code: "12AB", Name: ""}, appErrors.ErrValidation.Code, "name is required"},
		{"missing code", AddRecordRequest{Name: "X"}, appErrors.ErrValidation.Code, "code is required"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, path := newFileStore(t, "1\n1001,Ada Lovelace,20,18,19,95\n")
			before, err := os.ReadFile(path)
			require.NoError(t, err)

			_, err = store.AddRecord(context.Background(), tc.req)
			assert.Equal(t, tc.code, errorCode(t, err))
			assert.Equal(t, tc.message, appErrors.FromError(err).Message)
			assert.Equal(t, 1, store.Len())

			after, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestRecordStoreEditInPlace(t *testing.T) {
	store, path := newFileStore(t, "3\n1001,A,1,1,1,1\n1002,B,2,2,2,2\n1003,C,3,3,3,3\n")

	rec, err := store.EditRecord(context.Background(), "1002", EditMarksRequest{CW1: 20, CW2: 19, CW3: 18, Exam: 90})
	require.NoError(t, err)
	assert.Equal(t, "B", rec.Name)
	assert.Equal(t, 90, rec.Exam)

	records := store.Records()
	assert.Equal(t, []string{"1001", "1002", "1003"}, codes(records))
	assert.Equal(t, models.StudentRecord{Code: "1002", Name: "B", CW1: 20, CW2: 19, CW3: 18, Exam: 90}, records[1])

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "1002,B,20,19,18,90\n")
}

func TestRecordStoreEditErrors(t *testing.T) {
	store, _ := newFileStore(t, "1001,A,1,1,1,1\n")

	_, err := store.EditRecord(context.Background(), "9999", EditMarksRequest{})
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, err))

	_, err = store.EditRecord(context.Background(), "1001", EditMarksRequest{CW2: 25})
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))
	assert.Equal(t, "cw2 must be between 0 and 20", appErrors.FromError(err).Message)

	rec, err := store.FindByCode("1001")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.CW2)
}

func TestRecordStoreDelete(t *testing.T) {
	store, path := newFileStore(t, "2\n1001,A,1,1,1,1\n1002,B,2,2,2,2\n")

	require.NoError(t, store.DeleteRecord(context.Background(), "1001"))
	assert.Equal(t, []string{"1002"}, codes(store.Records()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1\n1002,B,2,2,2,2\n", string(raw))
}

func TestRecordStoreDeleteUnknownLeavesFileAlone(t *testing.T) {
	content := "2\n1001,A,1,1,1,1\n1002,B,2,2,2,2\n"
	store, path := newFileStore(t, content)
	version := store.Version()

	err := store.DeleteRecord(context.Background(), "4242")
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, err))
	assert.Equal(t, 2, store.Len())
	assert.Equal(t, version, store.Version())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, string(raw))
}

func TestRecordStoreFindByCodeExactMatch(t *testing.T) {
	store, _ := newFileStore(t, "1001,A,1,1,1,1\nab12,B,2,2,2,2\n")

	rec, err := store.FindByCode("ab12")
	require.NoError(t, err)
	assert.Equal(t, "B", rec.Name)

	_, err = store.FindByCode("AB12")
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, err))
}

func TestRecordStoreSearch(t *testing.T) {
	store, _ := newFileStore(t, "4\n1001,Ann Lee,1,1,1,1\n1002,Anna Bell,2,2,2,2\n1003,Joanna Fox,3,3,3,3\n1004,Bob,4,4,4,4\n")

	result, err := store.Search("1004")
	require.NoError(t, err)
	assert.Equal(t, models.SearchByCode, result.Kind)
	assert.Equal(t, []string{"1004"}, codes(result.Records))

	result, err = store.Search("  anna BELL ")
	require.NoError(t, err)
	assert.Equal(t, models.SearchByName, result.Kind)
	assert.Equal(t, []string{"1002"}, codes(result.Records))

	result, err = store.Search("ann")
	require.NoError(t, err)
	assert.Equal(t, models.SearchByPartial, result.Kind)
	assert.Equal(t, []string{"1001", "1002", "1003"}, codes(result.Records))

	result, err = store.Search("zed")
	require.NoError(t, err)
	assert.Equal(t, models.SearchByPartial, result.Kind)
	assert.Empty(t, result.Records)

	_, err = store.Search(" ")
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))
}

func TestRecordStoreExtreme(t *testing.T) {
	store, _ := newFileStore(t, "4\n1001,A,10,10,10,50\n1002,B,20,20,20,100\n1003,C,20,20,20,100\n1004,D,0,0,0,0\n")

	best, err := store.Extreme(models.ExtremeMax)
	require.NoError(t, err)
	assert.Equal(t, "1002", best.Code, "ties go to the first record")

	worst, err := store.Extreme(models.ExtremeMin)
	require.NoError(t, err)
	assert.Equal(t, "1004", worst.Code)

	_, err = store.Extreme("median")
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))

	empty, _ := newFileStore(t, "0\n")
	_, err = empty.Extreme(models.ExtremeMax)
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, err))
}

func TestRecordStoreSortByExam(t *testing.T) {
	store, path := newFileStore(t, "3\n1001,A,1,1,1,60\n1002,B,1,1,1,90\n1003,C,1,1,1,75\n")

	require.NoError(t, store.SortBy(context.Background(), models.SortByExam, models.SortAsc))
	exams := func() []int {
		out := []int{}
		for _, r := range store.Records() {
			out = append(out, r.Exam)
		}
		return out
	}
	assert.Equal(t, []int{60, 75, 90}, exams())

	require.NoError(t, store.SortBy(context.Background(), models.SortByExam, models.SortDesc))
	assert.Equal(t, []int{90, 75, 60}, exams())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "3\n1002,B,1,1,1,90\n1003,C,1,1,1,75\n1001,A,1,1,1,60\n", string(raw))
}

func TestRecordStoreSortByGradeIsLexicographic(t *testing.T) {
	// percentages: 1001=31.25 (F), 1002=62.5 (B), 1003=90 (A), 1004=65 (B)
	store, _ := newFileStore(t, "4\n1001,A,10,10,10,20\n1002,B,10,10,10,70\n1003,C,20,20,20,84\n1004,D,10,10,14,70\n")

	require.NoError(t, store.SortBy(context.Background(), models.SortByGrade, models.SortAsc))
	assert.Equal(t, []string{"1003", "1002", "1004", "1001"}, codes(store.Records()),
		"letters ascend A..F and equal letters keep their order regardless of percentage")

	require.NoError(t, store.SortBy(context.Background(), models.SortByPercent, models.SortAsc))
	assert.Equal(t, []string{"1001", "1002", "1004", "1003"}, codes(store.Records()))
}

func TestRecordStoreSortDescendingIsStable(t *testing.T) {
	store, _ := newFileStore(t, "3\n1001,A,1,1,1,50\n1002,B,1,1,1,70\n1003,C,1,1,1,50\n")

	require.NoError(t, store.SortBy(context.Background(), models.SortByExam, models.SortDesc))
	assert.Equal(t, []string{"1002", "1001", "1003"}, codes(store.Records()))
}

func TestRecordStoreSortEmptyWritesNothing(t *testing.T) {
	repo := &mockRecordRepo{loadResult: &models.LoadResult{Records: []models.StudentRecord{}}}
	store := NewRecordStore(repo, nil, nil, nil)
	_, err := store.Load(context.Background(), "marks.txt")
	require.NoError(t, err)

	require.NoError(t, store.SortBy(context.Background(), models.SortByExam, models.SortDesc))
	assert.Empty(t, repo.saved)
	assert.Equal(t, 0, store.Len())
}

func TestRecordStoreSortByCodeAndName(t *testing.T) {
	store, _ := newFileStore(t, "4\n2000,bravo,1,1,1,1\nZZ,Alpha,1,1,1,1\n1000,charlie,1,1,1,1\nAA,delta,1,1,1,1\n")

	require.NoError(t, store.SortBy(context.Background(), models.SortByCode, models.SortAsc))
	assert.Equal(t, []string{"1000", "2000", "AA", "ZZ"}, codes(store.Records()))

	require.NoError(t, store.SortBy(context.Background(), models.SortByName, ""))
	assert.Equal(t, []string{"ZZ", "2000", "1000", "AA"}, codes(store.Records()))

	err := store.SortBy(context.Background(), "height", models.SortAsc)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))
	err = store.SortBy(context.Background(), models.SortByName, "sideways")
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))
}

func TestRecordStoreClassSummary(t *testing.T) {
	store, _ := newFileStore(t, "3\n1001,A,20,20,0,40\n1002,B,20,20,20,52\n1003,C,20,20,20,84\n")

	summary := store.ClassSummary()
	assert.False(t, summary.Empty)
	assert.Equal(t, 3, summary.Count)
	assert.Equal(t, 70.0, summary.Average)

	empty, _ := newFileStore(t, "")
	summary = empty.ClassSummary()
	assert.True(t, summary.Empty)
	assert.Equal(t, models.NoStudentsMessage, summary.Message)
	assert.Equal(t, 0, summary.Count)
}

func TestRecordStoreGradeDistribution(t *testing.T) {
	store, _ := newFileStore(t, "3\n1001,A,20,20,0,40\n1002,B,20,20,20,52\n1003,C,20,20,20,84\n")

	dist := store.GradeDistribution()
	assert.Equal(t, models.GradeDistribution{models.GradeA: 2, models.GradeB: 0, models.GradeC: 1, models.GradeD: 0, models.GradeF: 0}, dist)
}

func TestRecordStoreRoundTrip(t *testing.T) {
	store, path := newFileStore(t, "0\n")
	for _, code := range []string{"1003", "1001", "1002"} {
		_, err := store.AddRecord(context.Background(), validAdd(code))
		require.NoError(t, err)
	}

	reloaded := NewRecordStore(repository.NewRecordFileRepository(nil), nil, nil, nil)
	result, err := reloaded.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Corrupted)
	assert.Equal(t, store.Records(), reloaded.Records())
}

func TestRecordStoreRejectsNamesThatBreakTheFileLayout(t *testing.T) {
	store, path := newFileStore(t, "1\n1001,Ada,1,1,1,1\n")
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	for _, name := range []string{"Smith, John", "Ann\nLee", "Ann\rLee"} {
		req := validAdd("2001")
		req.Name = name
		_, err := store.AddRecord(context.Background(), req)
		require.Error(t, err, name)
		appErr := appErrors.FromError(err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
		assert.Equal(t, "name must not contain commas or line breaks", appErr.Message)
	}

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	reloaded := NewRecordStore(repository.NewRecordFileRepository(nil), nil, nil, nil)
	result, err := reloaded.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Corrupted)
	assert.Equal(t, store.Records(), reloaded.Records())
}

func TestIsRecordName(t *testing.T) {
	assert.True(t, IsRecordName("Ada Lovelace"))
	assert.True(t, IsRecordName("O'Neil-Smith"))
	assert.False(t, IsRecordName("Smith, John"))
	assert.False(t, IsRecordName("Ann\nLee"))
	assert.False(t, IsRecordName("Ann\r"))
}

func TestRecordStoreLoadFailureKeepsState(t *testing.T) {
	store, path := newFileStore(t, "1001,A,1,1,1,1\n")
	version := store.Version()

	_, err := store.Load(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	assert.Equal(t, appErrors.ErrIO.Code, errorCode(t, err))
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, path, store.Source())
	assert.Equal(t, version, store.Version())

	_, err = store.Load(context.Background(), "  ")
	assert.Equal(t, appErrors.ErrIO.Code, errorCode(t, err))
}

func TestRecordStoreLoadRepointsSource(t *testing.T) {
	store, _ := newFileStore(t, "1001,A,1,1,1,1\n")
	other := filepath.Join(t.TempDir(), "other.txt")
	require.NoError(t, os.WriteFile(other, []byte("2\n2001,X,1,1,1,1\nbroken line\n"), 0o644))

	result, err := store.Load(context.Background(), other)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Corrupted)
	assert.Equal(t, other, store.Source())
	assert.Equal(t, []string{"2001"}, codes(store.Records()))
}

func TestRecordStoreRepointConfinedToDataDirectory(t *testing.T) {
	store, path := newFileStore(t, "1\n1001,A,1,1,1,1\n")
	guard, err := NewSourceGuard(path)
	require.NoError(t, err)

	outside := filepath.Join(t.TempDir(), "settings.conf")
	original := []byte("listen=8080\nmode=prod\n")
	require.NoError(t, os.WriteFile(outside, original, 0o644))

	for _, source := range []string{outside, "../settings.conf", "sub/marks.txt", "."} {
		_, err := guard.Resolve(source)
		assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err), source)
	}
	_, err = guard.Resolve("  ")
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))

	sibling, err := guard.Resolve("term2.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "term2.txt"), sibling)
	same, err := guard.Resolve(path)
	require.NoError(t, err)
	assert.Equal(t, path, same)

	require.NoError(t, os.WriteFile(sibling, []byte("0\n"), 0o644))
	_, err = store.Load(context.Background(), sibling)
	require.NoError(t, err)
	_, err = store.AddRecord(context.Background(), validAdd("2000"))
	require.NoError(t, err)

	content, err := os.ReadFile(outside)
	require.NoError(t, err)
	assert.Equal(t, original, content)
}

func TestRecordStoreSaveFailureKeepsMutation(t *testing.T) {
	repo := &mockRecordRepo{saveErr: errors.New("read-only file system")}
	store := NewRecordStore(repo, nil, zap.NewNop(), nil)
	_, err := store.Load(context.Background(), "marks.txt")
	require.NoError(t, err)

	_, err = store.AddRecord(context.Background(), validAdd("1001"))
	assert.Equal(t, appErrors.ErrIO.Code, errorCode(t, err))
	assert.Equal(t, 1, store.Len(), "in-memory add is not rolled back")
}

func TestRecordStoreSaveWithoutSource(t *testing.T) {
	repo := &mockRecordRepo{}
	store := NewRecordStore(repo, nil, nil, nil)

	_, err := store.AddRecord(context.Background(), validAdd("1001"))
	assert.Equal(t, appErrors.ErrIO.Code, errorCode(t, err))
	assert.Empty(t, repo.saved)
}

func TestRecordStoreVersionAdvancesOnMutation(t *testing.T) {
	repo := &mockRecordRepo{loadResult: &models.LoadResult{Records: []models.StudentRecord{{Code: "1001", Name: "A"}}}}
	store := NewRecordStore(repo, nil, nil, nil)
	_, err := store.Load(context.Background(), "dataset")
	require.NoError(t, err)
	v1 := store.Version()

	_, err = store.EditRecord(context.Background(), "1001", EditMarksRequest{Exam: 10})
	require.NoError(t, err)
	assert.Greater(t, store.Version(), v1)
	require.Len(t, repo.saved, 1)
	assert.Equal(t, 10, repo.saved[0][0].Exam)
}

func TestIsStudentCode(t *testing.T) {
	for _, ok := range []string{"1000", "9999", "4321"} {
		assert.True(t, IsStudentCode(ok), ok)
	}
	for _, bad := range []string{"", "999", "10000", "0999", "12AB", "-123", "１２３４"} {
		assert.False(t, IsStudentCode(bad), bad)
	}
}
