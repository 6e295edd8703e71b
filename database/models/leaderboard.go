// Copyright 2025 Blink Labs Software
//
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

package models

import (
	"errors"
	"time"
)

var ErrLeaderboardRowNotFound = errors.New("leaderboard row not found")

// LeaderboardRow is the materialized cross-repository aggregate for a
// handle. Rows are maintained purely from audit-diff deltas; a row exists
// only while it counts at least one repository and at least one vouch or
// denounce. Score is always Vouched - Denounced.
type LeaderboardRow struct {
	Handle       string `gorm:"uniqueIndex;size:255;not null"`
	UpdatedAt    time.Time
	ID           uint `gorm:"primarykey"`
	Vouched      int
	Denounced    int
	Repositories int
	Score        int `gorm:"index"`
}

func (LeaderboardRow) TableName() string {
	return "leaderboard"
}
