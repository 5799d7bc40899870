//
// Copyright 2019-2020 Nestybox, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package lock_test

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwpmu/accessd/internal/lock"
)

func TestAlwaysAllowed(t *testing.T) {
	assert.True(t, lock.AlwaysAllowed{}.Allowed())
}

func TestFileCheckerAllowedWhenLockFileAbsent(t *testing.T) {
	c := lock.FileChecker{Fs: afero.NewMemMapFs(), Path: "/var/run/accessd.lock"}
	assert.True(t, c.Allowed())
}

func TestFileCheckerRestrictedWhenLockFilePresent(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/var/run/accessd.lock", []byte("1234\n"), 0644))

	c := lock.FileChecker{Fs: fs, Path: "/var/run/accessd.lock"}
	assert.False(t, c.Allowed())
}
