// Copyright (C) 2024 duggavo
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRemovePort(t *testing.T) {
	require.Equal(t, "10.0.0.1", RemovePort("10.0.0.1:2234"))
	require.Equal(t, "::1", RemovePort("[::1]:2234"))
	require.Equal(t, "10.0.0.1", RemovePort("10.0.0.1"))
}

func TestSplitLines(t *testing.T) {
	require.Nil(t, SplitLines(""))
	require.Equal(t, []string{"a"}, SplitLines("a\n"))
	require.Equal(t, []string{"a", "", "b"}, SplitLines("a\r\n\nb"))
	require.Equal(t, []string{"a", "b"}, SplitLines("a\rb"))
}
