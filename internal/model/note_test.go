package model_test

import (
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/tsuzuri/internal/model"
)

// ---- ValidateNoteInput ---------------------------------------------------

func TestValidateNoteInput_HappyPath(t *testing.T) {
	assert.NoError(t, model.ValidateNoteInput("Groceries", "milk, eggs"))
	assert.NoError(t, model.ValidateNoteInput("Empty body is fine", ""))
}

func TestValidateNoteInput_BlankTitle(t *testing.T) {
	for _, title := range []string{"", " ", "\t\n"} {
		err := model.ValidateNoteInput(title, "content")
		require.Error(t, err, "title %q", title)
		assert.Contains(t, err.Error(), "title")
	}
}

func TestValidateNoteInput_Limits(t *testing.T) {
	assert.NoError(t, model.ValidateNoteInput(strings.Repeat("t", model.MaxTitleLen), ""), "at the limit should pass")

	err := model.ValidateNoteInput(strings.Repeat("t", model.MaxTitleLen+1), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "title")

	err = model.ValidateNoteInput("ok", strings.Repeat("c", model.MaxContentLen+1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content")
}

// ---- ordering ------------------------------------------------------------

func TestLess_PinnedFirstThenNewest(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	notes := []model.Note{
		{ID: 1, Title: "old", Timestamp: base},
		{ID: 2, Title: "pinned old", IsPinned: true, Timestamp: base.Add(time.Minute)},
		{ID: 3, Title: "new", Timestamp: base.Add(2 * time.Minute)},
		{ID: 4, Title: "pinned new", IsPinned: true, Timestamp: base.Add(3 * time.Minute)},
	}
	sort.Slice(notes, func(i, j int) bool { return model.Less(notes[i], notes[j]) })

	var ids []int64
	for _, n := range notes {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []int64{4, 2, 3, 1}, ids)
}

func TestLess_TimestampTieBrokenByID(t *testing.T) {
	ts := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a := model.Note{ID: 7, Timestamp: ts}
	b := model.Note{ID: 8, Timestamp: ts}
	assert.True(t, model.Less(b, a))
	assert.False(t, model.Less(a, b))
}

// ---- title filtering -----------------------------------------------------

func TestFilterByTitle_CaseInsensitive(t *testing.T) {
	notes := []model.Note{
		{ID: 1, Title: "Grocery List"},
		{ID: 2, Title: "grocery run"},
		{ID: 3, Title: "Meeting notes", Content: "buy GROCERY bags"},
	}
	got := model.FilterByTitle(notes, "GROCERY")
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, int64(2), got[1].ID)
}

func TestFilterByTitle_EmptyQueryKeepsAll(t *testing.T) {
	notes := []model.Note{{ID: 1, Title: "a"}, {ID: 2, Title: "b"}}
	assert.Equal(t, notes, model.FilterByTitle(notes, ""))
}

func TestModerationText(t *testing.T) {
	assert.Equal(t, "Hi normal text", model.ModerationText("Hi", "normal text"))
	assert.Equal(t, "Hi ", model.ModerationText("Hi", ""))
}

func TestVerdictConstructors(t *testing.T) {
	assert.Equal(t, model.Verdict{}, model.Clean())
	assert.Equal(t, model.DefaultFlagReason, model.Flagged("").Reason)
	assert.True(t, model.Flagged("x").Flagged)

	v := model.FailOpen()
	assert.False(t, v.Flagged)
	assert.True(t, v.Degraded)
	assert.Empty(t, v.Reason)
}
