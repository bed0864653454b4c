// Copyright 2025 IntentFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package orgconfig

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(filepath.Join(t.TempDir(), "orgs.json"))
}

func TestFileStorePutAndGet(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Put(&OrgConfig{OrgID: "acme", OrgName: "Acme", Enabled: true}))

	got, err := store.Get("acme")
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.OrgName)
	assert.False(t, got.UpdatedAt.IsZero(), "Put must stamp UpdatedAt")
}

func TestFileStoreGetMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get("ghost")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFileStoreRejectsEmptyOrgID(t *testing.T) {
	store := newTestStore(t)
	assert.Error(t, store.Put(&OrgConfig{}))
	assert.Error(t, store.Put(nil))
}

func TestFileStoreSoftDeleteAndRestore(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Put(&OrgConfig{OrgID: "acme", OrgName: "Acme"}))

	require.NoError(t, store.SoftDelete("acme"))

	_, err := store.Get("acme")
	assert.True(t, errors.Is(err, ErrNotFound), "soft-deleted record must be invisible")

	list, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, store.Restore("acme"))
	got, err := store.Get("acme")
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.OrgName)
	assert.Nil(t, got.DeletedAt)
}

func TestFileStoreHardDelete(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Put(&OrgConfig{OrgID: "acme"}))

	require.NoError(t, store.HardDelete("acme"))

	_, err := store.Get("acme")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(store.Restore("acme"), ErrNotFound), "hard-deleted record is gone for good")
}

func TestFileStoreAtomicRewrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orgs.json")
	store := NewFileStore(path)

	require.NoError(t, store.Put(&OrgConfig{OrgID: "a"}))
	require.NoError(t, store.Put(&OrgConfig{OrgID: "b"}))

	// No temp files may survive a completed mutation.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".orgstore-"), "leftover temp file %s", e.Name())
	}

	list, err := store.List()
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestFileStoreListSorted(t *testing.T) {
	store := newTestStore(t)
	for _, id := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, store.Put(&OrgConfig{OrgID: id}))
	}

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "alpha", list[0].OrgID)
	assert.Equal(t, "zeta", list[2].OrgID)
}
