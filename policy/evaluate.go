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

package policy

import (
	"leechban/log"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

// evaluate compares the share counts of a user against the policy.
// Okay users are only evaluated again when recheck is set.
func (e *Engine) evaluate(r *UserRecord, files, folders int, recheck bool) {
	r.Files, r.Folders, r.HasStats = files, folders, true

	buddies := e.host.GetBuddyUsernames()
	if buddies == nil {
		buddies = mapset.NewThreadUnsafeSet[string]()
	}
	isBuddy := buddies.Contains(r.Username)

	// buddies are only run through the policy on their very first probe
	if isBuddy && e.cfg.BypassForBuddies && r.State != RequestingStats {
		if r.State != Okay {
			e.releaseBuddy(r)
			return
		}
		e.logOncef(r, onceBypass, kindBuddies, "Buddy %s is sharing %d files in %d folders. Skipping check.",
			r.Username, files, folders)
		return
	}

	if r.State == Okay && !recheck {
		return
	}

	accepted := files >= e.cfg.MinFiles && folders >= e.cfg.MinFolders

	if accepted || isBuddy {
		wasDetected := e.unmarkDetected(r.Username)
		e.setState(r, Okay)

		if !accepted {
			e.logOncef(r, onceBuddy, kindBuddies, "Buddy %s is sharing %d files in %d folders. Not complaining.",
				r.Username, files, folders)
			return
		}

		e.logOncef(r, onceOkay, kindMeetsCriteria, "User %s is okay, sharing %d files in %d folders.",
			r.Username, files, folders)
		e.host.UnbanUser(r.Username)
		e.host.UnignoreUser(r.Username)
		if wasDetected {
			log.Infof("%s now shares %d files in %d folders, lifted", r.Username, files, folders)
			if e.hooks.OnRecover != nil {
				e.hooks.OnRecover(r.Username)
			}
		}
		return
	}

	e.detect(r, files, folders)
}

// detect handles a user failing the policy.
func (e *Engine) detect(r *UserRecord, files, folders int) {
	switch r.State {
	case PendingLeecher, ProcessedLeecher:
		// verdict unchanged; a processed leecher is not enforced twice in a cycle
		e.markDetected(r.Username)
		return
	case RequestingStats, RequestingShares:
		if e.enforced.Contains(r.Username) {
			// banned by a previous run, the host still holds the ban
			e.setState(r, ProcessedLeecher)
			e.logOncef(r, onceKnownLeecher, kindLeechers, "Leecher %s was already banned, skipping.", r.Username)
			return
		}
	}

	if e.cfg.VerifyZeroShares && (files <= 0 || folders <= 0) && r.State != RequestingShares {
		e.setState(r, RequestingShares)
		e.logf(kindRequests, "User %s has no shared files according to the server, requesting shares to verify...",
			r.Username)
		e.host.RequestUserShares(r.Username)
		return
	}

	e.setState(r, PendingLeecher)
	e.markDetected(r.Username)
	e.logOncef(r, onceDetected, kindLeechers, "Leecher detected: %s with %d files; %d folders.",
		r.Username, files, folders)
	if e.hooks.OnDetect != nil {
		e.hooks.OnDetect(r.Username, files, folders)
	}

	if e.cfg.BanOnDetect {
		e.setState(r, ProcessedLeecher)
		e.enforce(r)
	}
}

// bypassedBuddy reports whether the user is exempt from enforcement, using a
// fresh buddy snapshot.
func (e *Engine) bypassedBuddy(username string) bool {
	if !e.cfg.BypassForBuddies {
		return false
	}
	buddies := e.host.GetBuddyUsernames()
	return buddies != nil && buddies.Contains(username)
}

// releaseBuddy clears a verdict reached before the user became a buddy.
func (e *Engine) releaseBuddy(r *UserRecord) {
	wasBanned := r.State == ProcessedLeecher

	e.unmarkDetected(r.Username)
	e.setState(r, Okay)
	if wasBanned {
		e.host.UnbanUser(r.Username)
		e.host.UnignoreUser(r.Username)
	}
	e.logOncef(r, onceBuddy, kindBuddies, "Buddy %s is sharing %d files in %d folders. Not complaining.",
		r.Username, r.Files, r.Folders)
}

// markDetected only tracks the user in memory. Users are persisted once they
// were actually banned, see markEnforced.
func (e *Engine) markDetected(username string) {
	e.detected.Add(username)
}

func (e *Engine) markEnforced(username string) {
	e.detected.Add(username)
	if e.enforced.Add(username) {
		e.saveDetected()
	}
}

func (e *Engine) unmarkDetected(username string) bool {
	if !e.detected.Contains(username) {
		return false
	}
	e.detected.Remove(username)
	if e.enforced.Contains(username) {
		e.enforced.Remove(username)
		e.saveDetected()
	}
	return true
}

func (e *Engine) saveDetected() {
	store, ok := e.host.(LeecherStore)
	if !ok {
		return
	}
	out := e.enforced.ToSlice()
	slices.Sort(out)
	err := store.SaveDetectedLeechers(out)
	if err != nil {
		log.Warn("could not save detected leechers:", err)
	}
}
