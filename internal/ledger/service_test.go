package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"go_sitegen/internal/dbtest"
	"go_sitegen/internal/httpx"
	"go_sitegen/internal/model"
	"go_sitegen/internal/vfs"
)

func setup(t *testing.T) (*Service, *gorm.DB, *model.Project) {
	t.Helper()
	conn := dbtest.Open(t)
	p := dbtest.CreateProject(t, conn, 1, "acme", model.ProjectStatusDraft)
	return NewService(conn), conn, p
}

func sampleTree() *vfs.Tree {
	tree := vfs.New()
	tree.AddFile("package.json", `{"name":"acme"}`, model.FileTypeConfig)
	tree.Put("src/app/page.tsx", vfs.File{Content: "export default function Page() {}", Type: model.FileTypePage, SectionType: "hero", TokensUsed: 120})
	tree.AddFile("src/app/layout.tsx", "layout", model.FileTypeComponent)
	return tree
}

// completeNew opens, starts and completes a version
func completeNew(t *testing.T, s *Service, projectID int) *model.GenerationVersion {
	t.Helper()
	ctx := context.Background()
	v, err := s.OpenVersion(ctx, projectID, model.TriggerFullRegenerate, nil)
	require.NoError(t, err)
	require.NoError(t, s.MarkGenerating(ctx, v.ID))
	done, err := s.CompleteVersion(ctx, v.ID, sampleTree(), Metrics{TotalTokensUsed: 120, GenerationTimeMs: 42, ModelUsed: "template"})
	require.NoError(t, err)
	return done
}

func TestOpenVersion_FirstIsPendingOne(t *testing.T) {
	s, _, p := setup(t)

	v, err := s.OpenVersion(context.Background(), p.ID, model.TriggerInitial, datatypes.JSON(`{"source":"wizard"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, v.VersionNumber)
	assert.Equal(t, model.VersionStatusPending, v.Status)
	assert.Equal(t, model.TriggerInitial, v.TriggerType)
	require.NotNil(t, v.InFlightProjectID)
	assert.Equal(t, p.ID, *v.InFlightProjectID)
}

func TestOpenVersion_ConflictWhileInFlight(t *testing.T) {
	s, _, p := setup(t)
	ctx := context.Background()

	v, err := s.OpenVersion(ctx, p.ID, model.TriggerInitial, nil)
	require.NoError(t, err)

	_, err = s.OpenVersion(ctx, p.ID, model.TriggerFullRegenerate, nil)
	assert.True(t, httpx.Is(err, httpx.ReasonConflict), "pending version must block, got %v", err)

	require.NoError(t, s.MarkGenerating(ctx, v.ID))
	_, err = s.OpenVersion(ctx, p.ID, model.TriggerFullRegenerate, nil)
	assert.True(t, httpx.Is(err, httpx.ReasonConflict), "generating version must block, got %v", err)
}

func TestOpenVersion_InFlightIndexConflict(t *testing.T) {
	s, conn, p := setup(t)
	ctx := context.Background()

	// Another process inserts its in-flight row after our count check
	raced := false
	require.NoError(t, conn.Callback().Create().Before("gorm:create").Register("test:racing_open", func(tx *gorm.DB) {
		v, ok := tx.Statement.Dest.(*model.GenerationVersion)
		if !ok || raced || v.InFlightProjectID == nil {
			return
		}
		raced = true
		err := tx.Session(&gorm.Session{NewDB: true}).Exec(
			"INSERT INTO generation_versions (project_id, version_number, status, in_flight_project_id, trigger_type, total_tokens_used, created_at) VALUES (?, ?, ?, ?, ?, 0, ?)",
			v.ProjectID, v.VersionNumber+100, model.VersionStatusPending, *v.InFlightProjectID, model.TriggerInitial, time.Now(),
		).Error
		if err != nil {
			tx.AddError(err)
		}
	}))

	_, err := s.OpenVersion(ctx, p.ID, model.TriggerInitial, nil)
	require.True(t, raced)
	assert.True(t, httpx.Is(err, httpx.ReasonConflict), "in-flight index violation must map to conflict, got %v", err)

	var count int64
	require.NoError(t, conn.Model(&model.GenerationVersion{}).Where("project_id = ?", p.ID).Count(&count).Error)
	assert.Zero(t, count, "losing open rolls back")

	v, err := s.OpenVersion(ctx, p.ID, model.TriggerInitial, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, v.VersionNumber)
}

func TestOpenVersion_Validation(t *testing.T) {
	s, _, p := setup(t)
	ctx := context.Background()

	_, err := s.OpenVersion(ctx, p.ID, model.TriggerType("manual"), nil)
	assert.True(t, httpx.Is(err, httpx.ReasonValidation))

	_, err = s.OpenVersion(ctx, 9999, model.TriggerInitial, nil)
	assert.True(t, httpx.Is(err, httpx.ReasonNotFound))
}

func TestOpenVersion_NumbersIncreaseWithoutReuse(t *testing.T) {
	s, _, p := setup(t)
	ctx := context.Background()

	v1 := completeNew(t, s, p.ID)
	assert.Equal(t, 1, v1.VersionNumber)

	v2, err := s.OpenVersion(ctx, p.ID, model.TriggerStyleChange, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, v2.VersionNumber)
	require.NoError(t, s.FailVersion(ctx, v2.ID, "producer crashed", nil))

	v3, err := s.OpenVersion(ctx, p.ID, model.TriggerSectionEdit, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, v3.VersionNumber)
}

func TestOpenVersion_ConcurrentExactlyOneWins(t *testing.T) {
	s, _, p := setup(t)
	ctx := context.Background()

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   []*model.GenerationVersion
		conflicts int
		others    []error
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			v, err := s.OpenVersion(ctx, p.ID, model.TriggerInitial, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, v)
			case httpx.Is(err, httpx.ReasonConflict):
				conflicts++
			default:
				others = append(others, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, others)
	require.Len(t, winners, 1)
	assert.Equal(t, n-1, conflicts)
	assert.Equal(t, 1, winners[0].VersionNumber)
	assert.Equal(t, model.VersionStatusPending, winners[0].Status)
}

func TestOpenVersion_ConcurrentRoundsHaveNoGaps(t *testing.T) {
	s, conn, p := setup(t)
	ctx := context.Background()

	for round := 1; round <= 4; round++ {
		var wg sync.WaitGroup
		var mu sync.Mutex
		var winner *model.GenerationVersion
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				v, err := s.OpenVersion(ctx, p.ID, model.TriggerFullRegenerate, nil)
				if err == nil {
					mu.Lock()
					winner = v
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		require.NotNil(t, winner, "round %d had no winner", round)
		require.NoError(t, s.FailVersion(ctx, winner.ID, fmt.Sprintf("round %d", round), nil))
	}

	var numbers []int
	require.NoError(t, conn.Model(&model.GenerationVersion{}).
		Where("project_id = ?", p.ID).Order("version_number ASC").
		Pluck("version_number", &numbers).Error)
	assert.Equal(t, []int{1, 2, 3, 4}, numbers)
}

func TestMarkGenerating(t *testing.T) {
	s, _, p := setup(t)
	ctx := context.Background()

	v, err := s.OpenVersion(ctx, p.ID, model.TriggerInitial, nil)
	require.NoError(t, err)
	require.NoError(t, s.MarkGenerating(ctx, v.ID))

	got, err := s.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, model.VersionStatusGenerating, got.Status)

	err = s.MarkGenerating(ctx, v.ID)
	assert.True(t, httpx.Is(err, httpx.ReasonValidation), "generating -> generating must be rejected, got %v", err)

	err = s.MarkGenerating(ctx, 12345)
	assert.True(t, httpx.Is(err, httpx.ReasonNotFound))
}

func TestCompleteVersion_PersistsFilesAndMetrics(t *testing.T) {
	s, _, p := setup(t)
	ctx := context.Background()

	v := completeNew(t, s, p.ID)
	assert.Equal(t, model.VersionStatusComplete, v.Status)
	assert.Equal(t, 120, v.TotalTokensUsed)
	require.NotNil(t, v.GenerationTimeMs)
	assert.Equal(t, int64(42), *v.GenerationTimeMs)
	assert.Equal(t, "template", v.ModelUsed)
	assert.NotNil(t, v.CompletedAt)
	assert.Nil(t, v.InFlightProjectID)
	assert.Nil(t, v.ErrorMessage)

	files, err := s.Files(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "package.json", files[0].FilePath)
	assert.Equal(t, "src/app/page.tsx", files[1].FilePath)
	require.NotNil(t, files[1].SectionType)
	assert.Equal(t, "hero", *files[1].SectionType)

	tree, err := s.Tree(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, sampleTree().Paths(), tree.Paths())
	f, ok := tree.GetFile("src/app/page.tsx")
	require.True(t, ok)
	assert.Equal(t, 120, f.TokensUsed)
	assert.Equal(t, model.FileTypePage, f.Type)
}

func TestCompleteVersion_RejectsEmptyTree(t *testing.T) {
	s, _, p := setup(t)
	ctx := context.Background()

	v, err := s.OpenVersion(ctx, p.ID, model.TriggerInitial, nil)
	require.NoError(t, err)
	require.NoError(t, s.MarkGenerating(ctx, v.ID))

	_, err = s.CompleteVersion(ctx, v.ID, vfs.New(), Metrics{})
	assert.True(t, httpx.Is(err, httpx.ReasonValidation))
	_, err = s.CompleteVersion(ctx, v.ID, nil, Metrics{})
	assert.True(t, httpx.Is(err, httpx.ReasonValidation))

	got, err := s.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, model.VersionStatusGenerating, got.Status)
}

func TestCompleteVersion_FromPendingLeavesNoFiles(t *testing.T) {
	s, _, p := setup(t)
	ctx := context.Background()

	v, err := s.OpenVersion(ctx, p.ID, model.TriggerInitial, nil)
	require.NoError(t, err)

	_, err = s.CompleteVersion(ctx, v.ID, sampleTree(), Metrics{})
	assert.True(t, httpx.Is(err, httpx.ReasonValidation))

	files, err := s.Files(ctx, v.ID)
	require.NoError(t, err)
	assert.Empty(t, files, "files must not be persisted for a version that is still pending")
}

func TestCompleteVersion_FileWriteFailureRollsBackStatus(t *testing.T) {
	s, conn, p := setup(t)
	ctx := context.Background()

	v, err := s.OpenVersion(ctx, p.ID, model.TriggerInitial, nil)
	require.NoError(t, err)
	require.NoError(t, s.MarkGenerating(ctx, v.ID))

	// A conflicting row makes the file insert fail after the status update ran
	require.NoError(t, conn.Create(&model.GeneratedFile{
		VersionID: v.ID, FilePath: "src/app/layout.tsx", Content: "stray", FileType: model.FileTypeComponent,
	}).Error)

	_, err = s.CompleteVersion(ctx, v.ID, sampleTree(), Metrics{TotalTokensUsed: 1})
	require.Error(t, err)

	got, err := s.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, model.VersionStatusGenerating, got.Status, "status must roll back with the failed file write")
	assert.Nil(t, got.CompletedAt)

	latest, err := s.LatestComplete(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestCompleteVersion_RejectsUnknownFileType(t *testing.T) {
	s, _, p := setup(t)
	ctx := context.Background()

	v, err := s.OpenVersion(ctx, p.ID, model.TriggerInitial, nil)
	require.NoError(t, err)
	require.NoError(t, s.MarkGenerating(ctx, v.ID))

	tree := vfs.New()
	tree.AddFile("logo.png", "...", model.FileType("binary"))
	_, err = s.CompleteVersion(ctx, v.ID, tree, Metrics{})
	assert.True(t, httpx.Is(err, httpx.ReasonValidation))
}

func TestFailVersion(t *testing.T) {
	s, _, p := setup(t)
	ctx := context.Background()

	v, err := s.OpenVersion(ctx, p.ID, model.TriggerInitial, nil)
	require.NoError(t, err)
	require.NoError(t, s.MarkGenerating(ctx, v.ID))
	require.NoError(t, s.FailVersion(ctx, v.ID, "producer returned no pages", datatypes.JSON(`{"stage":"produce"}`)))

	got, err := s.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, model.VersionStatusError, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "producer returned no pages", *got.ErrorMessage)
	assert.JSONEq(t, `{"stage":"produce"}`, string(got.ErrorDetails))
	assert.Nil(t, got.GenerationTimeMs)
	assert.Nil(t, got.InFlightProjectID)

	err = s.FailVersion(ctx, v.ID, "again", nil)
	assert.True(t, httpx.Is(err, httpx.ReasonValidation), "terminal versions stay terminal")

	done := completeNew(t, s, p.ID)
	err = s.FailVersion(ctx, done.ID, "late failure", nil)
	assert.True(t, httpx.Is(err, httpx.ReasonValidation))
}

func TestFailVersion_TruncatesOnRuneBoundary(t *testing.T) {
	s, _, p := setup(t)
	ctx := context.Background()

	v, err := s.OpenVersion(ctx, p.ID, model.TriggerInitial, nil)
	require.NoError(t, err)

	// 3-byte runes straddle the limit
	message := strings.Repeat("生", maxErrorMessageLen)
	require.NoError(t, s.FailVersion(ctx, v.ID, message, nil))

	got, err := s.Get(ctx, v.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ErrorMessage)
	assert.True(t, utf8.ValidString(*got.ErrorMessage))
	assert.LessOrEqual(t, len(*got.ErrorMessage), maxErrorMessageLen)
	assert.Equal(t, maxErrorMessageLen-maxErrorMessageLen%3, len(*got.ErrorMessage))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exact", 5, "exact"},
		{"abcdef", 3, "abc"},
		{"aé", 2, "a"},
		{"éé", 3, "é"},
		{"生", 2, ""},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestLatestComplete(t *testing.T) {
	s, conn, p := setup(t)
	ctx := context.Background()

	latest, err := s.LatestComplete(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	v1 := completeNew(t, s, p.ID)
	v2 := completeNew(t, s, p.ID)

	v3, err := s.OpenVersion(ctx, p.ID, model.TriggerSectionEdit, nil)
	require.NoError(t, err)
	require.NoError(t, s.FailVersion(ctx, v3.ID, "boom", nil))

	_, err = s.OpenVersion(ctx, p.ID, model.TriggerSectionEdit, nil)
	require.NoError(t, err)

	latest, err = s.LatestComplete(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, v2.ID, latest.ID)

	// A complete row without files is never served
	require.NoError(t, conn.Where("version_id = ?", v2.ID).Delete(&model.GeneratedFile{}).Error)
	latest, err = s.LatestComplete(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, v1.ID, latest.ID)
}

func TestGetForProjectAndList(t *testing.T) {
	s, conn, p := setup(t)
	ctx := context.Background()
	other := dbtest.CreateProject(t, conn, 2, "other", model.ProjectStatusDraft)

	for i := 0; i < 3; i++ {
		completeNew(t, s, p.ID)
	}
	foreign := completeNew(t, s, other.ID)

	_, err := s.GetForProject(ctx, p.ID, foreign.ID)
	assert.True(t, httpx.Is(err, httpx.ReasonNotFound))

	versions, total, err := s.List(ctx, p.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, versions, 2)
	assert.Equal(t, 3, versions[0].VersionNumber)
	assert.Equal(t, 2, versions[1].VersionNumber)

	versions, _, err = s.List(ctx, p.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, 1, versions[0].VersionNumber)
}

func TestExpireStale(t *testing.T) {
	s, conn, p := setup(t)
	ctx := context.Background()

	stuck, err := s.OpenVersion(ctx, p.ID, model.TriggerInitial, nil)
	require.NoError(t, err)
	require.NoError(t, s.MarkGenerating(ctx, stuck.ID))
	require.NoError(t, conn.Model(&model.GenerationVersion{}).
		Where("id = ?", stuck.ID).
		Update("created_at", time.Now().Add(-2*time.Hour)).Error)

	fresh := dbtest.CreateProject(t, conn, 1, "fresh", model.ProjectStatusDraft)
	recent, err := s.OpenVersion(ctx, fresh.ID, model.TriggerInitial, nil)
	require.NoError(t, err)

	n, err := s.ExpireStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.Get(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, model.VersionStatusError, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "generation timed out", *got.ErrorMessage)

	still, err := s.Get(ctx, recent.ID)
	require.NoError(t, err)
	assert.Equal(t, model.VersionStatusPending, still.Status)

	_, err = s.OpenVersion(ctx, p.ID, model.TriggerFullRegenerate, nil)
	assert.NoError(t, err, "expired project must accept a new generation")
}
