// SPDX-License-Identifier: AGPL-3.0-or-later

package ruletask

import "errors"

var errExecTimeout = errors.New("ruletask: rule executor exceeded its execution timeout")
