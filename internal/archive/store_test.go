package archive

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemStore(t *testing.T) (*Store, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	return New(fs, "/archives", WithLocation(time.UTC)), fs
}

func TestStore_WriteEntryIsWriteOnce(t *testing.T) {
	s, _ := newMemStore(t)
	name := "Archive_2024-03-14.zip"

	written, err := s.WriteEntry(name, "Sales_2024-03-14.html", []byte("first"))
	require.NoError(t, err)
	assert.True(t, written)

	written, err = s.WriteEntry(name, "Sales_2024-03-14.html", []byte("second"))
	require.NoError(t, err)
	assert.False(t, written)

	got, err := s.ReadEntry(name, "Sales_2024-03-14.html")
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))
}

func TestStore_WriteEntryKeepsOtherEntries(t *testing.T) {
	s, _ := newMemStore(t)
	name := "Archive_2024-03-14.zip"

	for i, stem := range []string{"Sales", "Stock", "Ops"} {
		_, err := s.WriteEntry(name, stem+"_2024-03-14.html", []byte(fmt.Sprintf("content %d", i)))
		require.NoError(t, err)
	}

	entries, err := s.Entries(name)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Sales_2024-03-14.html", "Stock_2024-03-14.html", "Ops_2024-03-14.html"}, entries)

	got, err := s.ReadEntry(name, "Sales_2024-03-14.html")
	require.NoError(t, err)
	assert.Equal(t, "content 0", string(got))
}

func TestStore_ReadEntryNotFound(t *testing.T) {
	s, _ := newMemStore(t)

	_, err := s.ReadEntry("Archive_2024-03-14.zip", "Sales_2024-03-14.html")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.EnsureContainer("Archive_2024-03-14.zip"))
	_, err = s.ReadEntry("Archive_2024-03-14.zip", "Sales_2024-03-14.html")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_EnsureContainerIsIdempotent(t *testing.T) {
	s, fs := newMemStore(t)
	name := "Archive_2024-03-14.zip"

	require.NoError(t, s.EnsureContainer(name))
	exists, err := afero.Exists(fs, "/archives/"+name)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = s.WriteEntry(name, "Sales_2024-03-14.html", []byte("x"))
	require.NoError(t, err)
	require.NoError(t, s.EnsureContainer(name))

	has, err := s.HasEntry(name, "Sales_2024-03-14.html")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestStore_DeleteEntriesAndReclaim(t *testing.T) {
	s, fs := newMemStore(t)
	name := "Archive_2024-03-14.zip"
	_, err := s.WriteEntry(name, "Sales_2024-03-14.html", []byte("a"))
	require.NoError(t, err)
	_, err = s.WriteEntry(name, "Stock_2024-03-14.html", []byte("b"))
	require.NoError(t, err)

	removed, err := s.DeleteEntries(name, func(e string) bool { return IsEntryOf(e, "Sales", time.UTC) })
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	deleted, err := s.DeleteContainerIfEmpty(name)
	require.NoError(t, err)
	assert.False(t, deleted, "container still holds Stock")

	ok, err := s.DeleteEntry(name, "Stock_2024-03-14.html")
	require.NoError(t, err)
	assert.True(t, ok)

	deleted, err = s.DeleteContainerIfEmpty(name)
	require.NoError(t, err)
	assert.True(t, deleted)

	exists, err := afero.Exists(fs, "/archives/"+name)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_ZeroByteContainerIsEmpty(t *testing.T) {
	s, fs := newMemStore(t)
	require.NoError(t, afero.WriteFile(fs, "/archives/Archive_2024-03-14.zip", nil, 0o644))

	entries, err := s.Entries("Archive_2024-03-14.zip")
	require.NoError(t, err)
	assert.Empty(t, entries)

	deleted, err := s.DeleteContainerIfEmpty("Archive_2024-03-14.zip")
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestStore_CorruptContainer(t *testing.T) {
	s, fs := newMemStore(t)
	require.NoError(t, afero.WriteFile(fs, "/archives/Archive_2024-03-14.zip", []byte("not a zip"), 0o644))

	_, err := s.ReadEntry("Archive_2024-03-14.zip", "Sales_2024-03-14.html")
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = s.WriteEntry("Archive_2024-03-14.zip", "Sales_2024-03-14.html", []byte("x"))
	assert.ErrorIs(t, err, ErrCorrupt)

	// Other containers are unaffected.
	_, err = s.WriteEntry("Archive_2024-03-15.zip", "Sales_2024-03-15.html", []byte("x"))
	assert.NoError(t, err)
}

func TestStore_ContainersSkipsForeignFiles(t *testing.T) {
	s, fs := newMemStore(t)
	for _, name := range []string{"Archive_2024-03-15.zip", "Archive_2024-03-14.zip"} {
		require.NoError(t, s.EnsureContainer(name))
	}
	require.NoError(t, afero.WriteFile(fs, "/archives/notes.txt", []byte("x"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/archives/Archive_latest.zip", []byte("x"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/archives/.lock", nil, 0o644))

	containers, err := s.Containers()
	require.NoError(t, err)
	require.Len(t, containers, 2)
	assert.Equal(t, "Archive_2024-03-14.zip", containers[0].Name)
	assert.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), containers[0].Date)
	assert.Equal(t, "Archive_2024-03-15.zip", containers[1].Name)
}

func TestStore_ContainersMissingDir(t *testing.T) {
	s, _ := newMemStore(t)
	containers, err := s.Containers()
	require.NoError(t, err)
	assert.Empty(t, containers)
}

func TestStore_ConcurrentWriters(t *testing.T) {
	s, _ := newMemStore(t)
	name := "Archive_2024-03-14.zip"

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.WriteEntry(name, fmt.Sprintf("Report%02d_2024-03-14.html", i), []byte("x"))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	entries, err := s.Entries(name)
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}

func TestStore_OsFilesystem(t *testing.T) {
	dir := t.TempDir()
	s := NewOsStore(dir, WithLocation(time.UTC))
	name := ContainerName(time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC))

	written, err := s.WriteEntry(name, "Sales_2024-03-14.html", []byte("<html></html>"))
	require.NoError(t, err)
	assert.True(t, written)

	got, err := s.ReadEntry(name, "Sales_2024-03-14.html")
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(got))

	containers, err := s.Containers()
	require.NoError(t, err)
	require.Len(t, containers, 1)
	assert.Equal(t, name, containers[0].Name)
}

func TestNames(t *testing.T) {
	day := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "Archive_2024-03-14.zip", ContainerName(day.Add(6*time.Hour)))
	assert.Equal(t, "Sales_Report_2024-03-14.html", EntryName("Sales_Report", day))
	assert.Equal(t, "Sales_Report_2024-03-14_06-00.html", EntryName("Sales_Report", day.Add(6*time.Hour)))

	date, ok := ParseContainerName("Archive_2024-03-14.zip", time.UTC)
	require.True(t, ok)
	assert.Equal(t, day, date)

	_, ok = ParseContainerName("Archive_2024-03-14.tar", time.UTC)
	assert.False(t, ok)

	stem, bucket, ok := ParseEntryName("Sales_Report_2024-03-14_06-00.html", time.UTC)
	require.True(t, ok)
	assert.Equal(t, "Sales_Report", stem)
	assert.Equal(t, day.Add(6*time.Hour), bucket)

	_, _, ok = ParseEntryName("Sales.html", time.UTC)
	assert.False(t, ok)

	assert.True(t, IsEntryOf("sales_2024-03-14.html", "Sales", time.UTC))
	assert.False(t, IsEntryOf("Sales_Report_2024-03-14.html", "Sales", time.UTC))
}

func TestStore_EntriesMissingContainer(t *testing.T) {
	s, _ := newMemStore(t)
	_, err := s.Entries("Archive_2024-03-14.zip")
	assert.True(t, errors.Is(err, ErrNotFound))
}
