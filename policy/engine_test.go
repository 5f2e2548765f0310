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
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Suppress = Suppress{}
	return cfg
}

func requireState(t *testing.T, e *Engine, user string, want ProbeState) {
	t.Helper()
	r, ok := e.User(user)
	require.True(t, ok, "no record for %s", user)
	require.Equal(t, want, r.State, "state of %s", user)
}

func TestAcceptedUser(t *testing.T) {
	h := newFakeHost()
	h.stats["alice"] = Stats{Files: 150, Folders: 10}
	e := New(h, testConfig(), Hooks{})

	e.UploadQueued("alice")

	requireState(t, e, "alice", Okay)
	require.Equal(t, []string{"alice"}, h.unbans)
	require.Equal(t, []string{"alice"}, h.unignores)
	require.Empty(t, h.bans)
	require.Empty(t, e.DetectedLeechers())

	// okay users are left alone by further notifications
	e.UploadQueued("alice")
	e.UserStats("alice", 0, 0)
	e.UploadFinished("alice")
	requireState(t, e, "alice", Okay)
	require.Empty(t, h.bans)
	require.Len(t, h.unbans, 1)
	require.Equal(t, 1, h.countLogs("User alice is okay, sharing 150 files in 10 folders."))
}

func TestLeecherBannedOnceOnFinish(t *testing.T) {
	h := newFakeHost()
	h.stats["bob"] = Stats{Files: 10, Folders: 1}
	cfg := testConfig()
	cfg.MessageOnBan = true
	cfg.OpenPrivateChat = true
	cfg.MessageTemplate = []string{"Share %files% files in %folders% folders", "Thanks"}

	var detected, banned int
	e := New(h, cfg, Hooks{
		OnDetect: func(string, int, int) { detected++ },
		OnBan:    func(string, int, int) { banned++ },
	})

	e.UploadQueued("bob")
	requireState(t, e, "bob", PendingLeecher)
	require.Equal(t, []string{"bob"}, e.DetectedLeechers())
	require.Empty(t, h.bans, "ban must wait for the upload to finish")

	e.UploadFinished("bob")
	e.UploadFinished("bob")
	e.UploadFinished("bob")

	requireState(t, e, "bob", ProcessedLeecher)
	require.Equal(t, []string{"bob"}, h.bans)
	require.Empty(t, h.ignores)
	require.Equal(t, []sentMessage{
		{User: "bob", Text: "Share 100 files in 5 folders", ShowUi: true},
		{User: "bob", Text: "Thanks", ShowUi: true},
	}, h.messages)
	require.Equal(t, 1, detected)
	require.Equal(t, 1, banned)
	require.Equal(t, 1, h.countLogs("Leecher detected: bob with 10 files; 1 folders."))
	require.Equal(t, 1, h.countLogs("Banned Leecher bob"))

	r, _ := e.User("bob")
	require.False(t, r.LastBannedAt.IsZero())
}

func TestIgnoreOnFail(t *testing.T) {
	h := newFakeHost()
	h.stats["bob"] = Stats{Files: 0, Folders: 1}
	cfg := testConfig()
	cfg.IgnoreOnFail = true
	e := New(h, cfg, Hooks{})

	e.UploadQueued("bob")
	e.UploadFinished("bob")

	require.Equal(t, []string{"bob"}, h.bans)
	require.Equal(t, []string{"bob"}, h.ignores)
	require.Empty(t, h.messages)
}

func TestBanOnDetect(t *testing.T) {
	h := newFakeHost()
	h.stats["bob"] = Stats{Files: 10, Folders: 1}
	cfg := testConfig()
	cfg.BanOnDetect = true
	e := New(h, cfg, Hooks{})

	e.UploadQueued("bob")
	requireState(t, e, "bob", ProcessedLeecher)
	require.Equal(t, []string{"bob"}, h.bans)

	e.UploadFinished("bob")
	e.UploadQueued("bob")
	require.Len(t, h.bans, 1)
}

func TestBuddyBypass(t *testing.T) {
	h := newFakeHost()
	h.buddies = []string{"carol"}
	h.stats["carol"] = Stats{Files: 0, Folders: 0}
	cfg := testConfig()
	cfg.RecheckInterval = 2
	e := New(h, cfg, Hooks{})

	e.UploadQueued("carol")
	requireState(t, e, "carol", Okay)

	for i := 0; i < 10; i++ {
		e.UploadQueued("carol")
		e.UserStats("carol", 0, 0)
		e.UploadFinished("carol")
	}
	_, err := e.Check("carol")
	require.NoError(t, err)

	requireState(t, e, "carol", Okay)
	require.Empty(t, h.bans)
	require.Empty(t, h.ignores)
	require.Empty(t, h.unbans, "buddies below the threshold are not unbanned")
	require.Empty(t, e.DetectedLeechers())
	require.Equal(t, 1, h.countLogs("Buddy carol is sharing 0 files in 0 folders. Not complaining."))
	require.Equal(t, 1, h.countLogs("Skipping check."))
}

func TestBuddyWithoutBypassIsNotBanned(t *testing.T) {
	h := newFakeHost()
	h.buddies = []string{"carol"}
	h.stats["carol"] = Stats{Files: 1, Folders: 1}
	cfg := testConfig()
	cfg.BypassForBuddies = false
	e := New(h, cfg, Hooks{})

	e.UploadQueued("carol")
	e.UploadFinished("carol")

	requireState(t, e, "carol", Okay)
	require.Empty(t, h.bans)
}

func TestRecheckPreventsBan(t *testing.T) {
	h := newFakeHost()
	h.stats["dave"] = Stats{Files: 10, Folders: 1}
	cfg := testConfig()
	cfg.RecheckInterval = 10
	var recovered []string
	e := New(h, cfg, Hooks{
		OnRecover: func(u string) { recovered = append(recovered, u) },
	})

	e.UploadQueued("dave")
	requireState(t, e, "dave", PendingLeecher)

	// dave starts sharing while his uploads are still queued
	h.stats["dave"] = Stats{Files: 150, Folders: 10}
	for i := 2; i < 10; i++ {
		e.UploadQueued("dave")
	}
	requireState(t, e, "dave", PendingLeecher)

	e.UploadQueued("dave")
	requireState(t, e, "dave", Okay)
	require.Empty(t, e.DetectedLeechers())
	require.Equal(t, []string{"dave"}, recovered)

	e.UploadFinished("dave")
	require.Empty(t, h.bans)
}

func TestRecheckDisabled(t *testing.T) {
	h := newFakeHost()
	h.stats["dave"] = Stats{Files: 10, Folders: 1}
	cfg := testConfig()
	cfg.RecheckEnabled = false
	cfg.RecheckInterval = 1
	e := New(h, cfg, Hooks{})

	e.UploadQueued("dave")
	h.stats["dave"] = Stats{Files: 150, Folders: 10}
	e.UploadQueued("dave")
	e.UploadQueued("dave")
	requireState(t, e, "dave", PendingLeecher)
}

func TestUploadStartedDoesNotCount(t *testing.T) {
	h := newFakeHost()
	h.stats["dave"] = Stats{Files: 10, Folders: 1}
	cfg := testConfig()
	cfg.RecheckInterval = 2
	e := New(h, cfg, Hooks{})

	e.UploadStarted("dave")
	requireState(t, e, "dave", PendingLeecher)

	h.stats["dave"] = Stats{Files: 150, Folders: 10}
	e.UploadStarted("dave")
	e.UploadStarted("dave")
	requireState(t, e, "dave", PendingLeecher)

	r, _ := e.User("dave")
	require.Zero(t, r.UploadCount)
}

func TestRecentBanCooldown(t *testing.T) {
	h := newFakeHost()
	h.stats["erin"] = Stats{Files: 10, Folders: 1}
	cfg := testConfig()
	cfg.MessageOnBan = true
	cfg.MessageTemplate = []string{"bye"}
	cfg.RecentBanCooldown = 60 * time.Minute
	e := New(h, cfg, Hooks{})

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e.SetClock(func() time.Time { return now })

	cycle := func() {
		t.Helper()
		h.stats["erin"] = Stats{Files: 150, Folders: 10}
		_, err := e.Check("erin")
		require.NoError(t, err)
		requireState(t, e, "erin", Okay)

		h.stats["erin"] = Stats{Files: 10, Folders: 1}
		_, err = e.Check("erin")
		require.NoError(t, err)
		requireState(t, e, "erin", PendingLeecher)
		e.UploadFinished("erin")
	}

	e.UploadQueued("erin")
	e.UploadFinished("erin")
	require.Len(t, h.bans, 1)
	require.Len(t, h.messages, 1)

	now = now.Add(10 * time.Minute)
	cycle()
	require.Len(t, h.bans, 2, "the ban is sent again")
	require.Len(t, h.messages, 1, "the message is not")

	now = now.Add(61 * time.Minute)
	cycle()
	require.Len(t, h.bans, 3)
	require.Len(t, h.messages, 2)
}

func TestDetectedRoundTrip(t *testing.T) {
	h := newFakeHost()
	h.stats["finn"] = Stats{Files: 10, Folders: 1}
	e := New(h, testConfig(), Hooks{})

	e.UploadQueued("finn")
	e.UserStats("finn", 10, 1)
	e.UserStats("finn", 5, 1)
	require.Equal(t, []string{"finn"}, e.DetectedLeechers())
	require.Zero(t, h.savedCalls, "only banned leechers are saved")

	e.UploadFinished("finn")
	require.Equal(t, []string{"finn"}, e.DetectedLeechers())
	require.Equal(t, []string{"finn"}, h.saved)

	e.UserStats("finn", 200, 20)
	requireState(t, e, "finn", Okay)
	require.Empty(t, e.DetectedLeechers())
	require.Empty(t, h.saved)
	require.Equal(t, []string{"finn"}, h.unbans)
	require.Equal(t, 2, h.savedCalls)
}

func TestMissingStatsDefers(t *testing.T) {
	h := newFakeHost()
	e := New(h, testConfig(), Hooks{})

	e.UploadQueued("gus")
	requireState(t, e, "gus", RequestingStats)

	state, err := e.Check("gus")
	require.ErrorIs(t, err, ErrMissingStats)
	require.Equal(t, RequestingStats, state)

	// counts arrive through a notification
	e.UserStats("gus", 3, 1)
	requireState(t, e, "gus", PendingLeecher)
}

func TestMissingStatsRetriedOnUpload(t *testing.T) {
	h := newFakeHost()
	e := New(h, testConfig(), Hooks{})

	e.UploadQueued("gus")
	requireState(t, e, "gus", RequestingStats)

	h.stats["gus"] = Stats{Files: 500, Folders: 50}
	e.UploadQueued("gus")
	requireState(t, e, "gus", Okay)
}

func TestStatsForUnknownUserIgnored(t *testing.T) {
	h := newFakeHost()
	e := New(h, testConfig(), Hooks{})

	e.UserStats("hank", 0, 0)
	_, ok := e.User("hank")
	require.False(t, ok)

	e.UserResolved("hank", "10.0.0.1", 2234, "DE")
	e.UserStats("hank", 0, 0)
	requireState(t, e, "hank", Unprobed)
	e.UploadFinished("hank")
	require.Empty(t, h.bans)
}

func TestVerifyZeroShares(t *testing.T) {
	h := newFakeHost()
	h.stats["ivy"] = Stats{Files: 0, Folders: 0}
	cfg := testConfig()
	cfg.VerifyZeroShares = true
	e := New(h, cfg, Hooks{})

	e.UploadQueued("ivy")
	requireState(t, e, "ivy", RequestingShares)
	require.Equal(t, []string{"ivy"}, h.shareRequests)
	require.Empty(t, e.DetectedLeechers())

	// upload completes before the shares came back: nothing to enforce yet
	e.UploadFinished("ivy")
	require.Empty(t, h.bans)

	e.UserStats("ivy", 0, 0)
	requireState(t, e, "ivy", PendingLeecher)
	require.Len(t, h.shareRequests, 1)

	e.UploadFinished("ivy")
	require.Equal(t, []string{"ivy"}, h.bans)
}

func TestVerifyZeroSharesFindsShares(t *testing.T) {
	h := newFakeHost()
	h.stats["ivy"] = Stats{Files: 0, Folders: 0}
	cfg := testConfig()
	cfg.VerifyZeroShares = true
	e := New(h, cfg, Hooks{})

	e.UploadQueued("ivy")
	e.UserStats("ivy", 300, 12)
	requireState(t, e, "ivy", Okay)
	require.Empty(t, h.bans)
}

func TestRestoredLeecherNotBannedTwice(t *testing.T) {
	h := newFakeHost()
	h.stats["jack"] = Stats{Files: 1, Folders: 1}
	e := New(h, testConfig(), Hooks{})
	e.RestoreDetected([]string{"jack"})

	e.UploadQueued("jack")
	requireState(t, e, "jack", ProcessedLeecher)
	e.UploadFinished("jack")
	require.Empty(t, h.bans)

	e.UserStats("jack", 100, 5)
	requireState(t, e, "jack", Okay)
	require.Equal(t, []string{"jack"}, h.unbans)
	require.Empty(t, e.DetectedLeechers())
}

func TestBlockIpOnBan(t *testing.T) {
	h := newFakeHost()
	h.stats["kim"] = Stats{Files: 1, Folders: 1}
	h.stats["lou"] = Stats{Files: 1, Folders: 1}
	h.stats["max"] = Stats{Files: 1, Folders: 1}
	cfg := testConfig()
	cfg.BlockIpOnBan = true

	var blocked []string
	e := New(h, cfg, Hooks{
		OnIpBlocked: func(u, ip string) { blocked = append(blocked, u+"@"+ip) },
	})

	e.UserResolved("kim", "1.2.3.4", 2234, "FR")
	e.UserResolved("lou", "1.2.3.4", 2235, "FR")

	for _, u := range []string{"kim", "lou", "max"} {
		e.UploadQueued(u)
		e.UploadFinished(u)
	}

	require.Equal(t, []string{"kim", "lou", "max"}, h.bans)
	require.Equal(t, map[string]string{"1.2.3.4": "kim"}, h.blockList)
	require.Equal(t, 1, h.persisted)
	require.Equal(t, []string{"kim@1.2.3.4"}, blocked)
	require.Equal(t, 1, h.countLogs("IP already blocked: 1.2.3.4"))
	require.Equal(t, 1, h.countLogs("Username max IP address was not resolved"))
}

func TestBlockIpErrors(t *testing.T) {
	h := newFakeHost()
	e := New(h, testConfig(), Hooks{})

	require.ErrorIs(t, e.blockIp(&UserRecord{Username: "nat"}), ErrUnresolvedIp)

	h.blockList["5.5.5.5"] = "someone"
	require.ErrorIs(t, e.blockIp(&UserRecord{Username: "nat", Ip: "5.5.5.5"}), ErrDuplicateBlock)
	require.Zero(t, h.persisted)

	h.persistErr = errors.New("disk full")
	err := e.blockIp(&UserRecord{Username: "nat", Ip: "6.6.6.6"})
	require.ErrorIs(t, err, h.persistErr)
	require.Equal(t, "nat", h.blockList["6.6.6.6"], "the list is updated even when persisting fails")
}

func TestUserResolvedKeepsAddress(t *testing.T) {
	e := New(newFakeHost(), testConfig(), Hooks{})

	e.UserResolved("oli", "1.1.1.1", 100, "NL")
	e.UserResolved("oli", "2.2.2.2", 200, "BE")
	e.UserResolved("oli", "3.3.3.3", 300, "")

	r, _ := e.User("oli")
	require.Equal(t, "1.1.1.1", r.Ip)
	require.Equal(t, uint32(100), r.Port)
	require.Equal(t, "BE", r.Country)
}

func TestPrivateMessageReceived(t *testing.T) {
	e := New(newFakeHost(), testConfig(), Hooks{})

	e.PrivateMessageReceived("pam", "hi")
	e.PrivateMessageReceived("pam", "please")

	r, _ := e.User("pam")
	require.Equal(t, uint32(2), r.MessagesReceived)
	require.Equal(t, Unprobed, r.State)
}

func TestLoadedClamps(t *testing.T) {
	h := newFakeHost()
	cfg := testConfig()
	cfg.MinFiles = -4
	cfg.MinFolders = 0
	cfg.RecheckInterval = 0
	e := New(h, cfg, Hooks{})

	e.Loaded()
	defer e.Close()

	got := e.Config()
	require.Equal(t, 0, got.MinFiles)
	require.Equal(t, 1, got.MinFolders)
	require.Equal(t, 1, got.RecheckInterval)
	require.Equal(t, []string{"Users need at least 0 files and 1 folders."}, h.logs)
}

func TestSuppressAll(t *testing.T) {
	h := newFakeHost()
	h.stats["quin"] = Stats{Files: 1, Folders: 1}
	cfg := testConfig()
	cfg.Suppress.All = true
	e := New(h, cfg, Hooks{})

	e.Loaded()
	e.UploadQueued("quin")
	e.UploadFinished("quin")

	require.Empty(t, h.logs)
	require.Len(t, h.bans, 1)
}

func TestStartupMute(t *testing.T) {
	h := newFakeHost()
	h.stats["rex"] = Stats{Files: 1, Folders: 1}
	h.stats["sam"] = Stats{Files: 1, Folders: 1}
	cfg := testConfig()
	cfg.StartupSuppressDelay = 30 * time.Millisecond
	e := New(h, cfg, Hooks{})
	defer e.Close()

	e.Loaded()
	require.Len(t, h.logs, 1)

	e.UploadQueued("rex")
	require.Zero(t, h.countLogs("Leecher detected: rex"))

	require.Eventually(t, func() bool { return !e.mute.active() }, time.Second, 5*time.Millisecond)

	e.UploadQueued("sam")
	require.Equal(t, 1, h.countLogs("Leecher detected: sam"))
}

func TestCloseCancelsMute(t *testing.T) {
	cfg := testConfig()
	cfg.StartupSuppressDelay = time.Hour
	e := New(newFakeHost(), cfg, Hooks{})

	e.Loaded()
	require.True(t, e.mute.active())

	e.Close()
	require.False(t, e.mute.active())
}

func TestConcurrentFinishBansOnce(t *testing.T) {
	h := newFakeHost()
	h.stats["tom"] = Stats{Files: 1, Folders: 1}
	e := New(h, testConfig(), Hooks{})
	e.UploadQueued("tom")

	var wg gosync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.UploadFinished("tom")
			e.UserStats("tom", 1, 1)
		}()
	}
	wg.Wait()

	require.Equal(t, []string{"tom"}, h.bans)
}

func TestCounts(t *testing.T) {
	h := newFakeHost()
	h.stats["a"] = Stats{Files: 500, Folders: 50}
	h.stats["b"] = Stats{Files: 1, Folders: 1}
	e := New(h, testConfig(), Hooks{})

	e.UploadQueued("a")
	e.UploadQueued("b")
	e.UploadQueued("c")

	c := e.Counts()
	require.Equal(t, 1, c[Okay])
	require.Equal(t, 1, c[PendingLeecher])
	require.Equal(t, 1, c[RequestingStats])

	users := e.Users()
	require.Len(t, users, 3)
	require.Equal(t, "a", users[0].Username)
}

func TestRestartBeforeFinishStillBans(t *testing.T) {
	h := newFakeHost()
	h.stats["bob"] = Stats{Files: 10, Folders: 1}

	first := New(h, testConfig(), Hooks{})
	first.UploadQueued("bob")
	requireState(t, first, "bob", PendingLeecher)
	require.Empty(t, h.bans)

	// the daemon restarts before the upload finishes
	second := New(h, testConfig(), Hooks{})
	second.RestoreDetected(h.saved)

	second.UploadQueued("bob")
	requireState(t, second, "bob", PendingLeecher)
	second.UploadFinished("bob")
	requireState(t, second, "bob", ProcessedLeecher)
	require.Equal(t, []string{"bob"}, h.bans)

	// once banned, a third run does not ban again
	third := New(h, testConfig(), Hooks{})
	third.RestoreDetected(h.saved)
	third.UploadQueued("bob")
	third.UploadFinished("bob")
	requireState(t, third, "bob", ProcessedLeecher)
	require.Len(t, h.bans, 1)
}

func TestBuddyAddedBeforeFinishIsNotBanned(t *testing.T) {
	h := newFakeHost()
	h.stats["bob"] = Stats{Files: 10, Folders: 1}
	e := New(h, testConfig(), Hooks{})

	e.UploadQueued("bob")
	requireState(t, e, "bob", PendingLeecher)

	h.buddies = []string{"bob"}
	e.UploadFinished("bob")

	requireState(t, e, "bob", Okay)
	require.Empty(t, h.bans)
	require.Empty(t, h.ignores)
	require.Empty(t, e.DetectedLeechers())
	require.Equal(t, 1, h.countLogs("Buddy bob is sharing 10 files in 1 folders. Not complaining."))
}

func TestBuddyAddedAfterStatsIsNotBanned(t *testing.T) {
	h := newFakeHost()
	h.stats["bob"] = Stats{Files: 10, Folders: 1}
	cfg := testConfig()
	cfg.IgnoreOnFail = true
	e := New(h, cfg, Hooks{})

	e.UploadQueued("bob")
	h.buddies = []string{"bob"}
	e.UserStats("bob", 10, 1)
	requireState(t, e, "bob", Okay)

	e.UploadFinished("bob")
	require.Empty(t, h.bans)
	require.Empty(t, h.ignores)
}

func TestBannedUserBecomingBuddyIsUnbanned(t *testing.T) {
	h := newFakeHost()
	h.stats["bob"] = Stats{Files: 10, Folders: 1}
	e := New(h, testConfig(), Hooks{})

	e.UploadQueued("bob")
	e.UploadFinished("bob")
	require.Equal(t, []string{"bob"}, h.saved)

	h.buddies = []string{"bob"}
	e.UserStats("bob", 10, 1)

	requireState(t, e, "bob", Okay)
	require.Equal(t, []string{"bob"}, h.unbans)
	require.Empty(t, h.saved)
}

func TestCheckOkayUserUnbansAgain(t *testing.T) {
	h := newFakeHost()
	h.stats["alice"] = Stats{Files: 150, Folders: 10}
	e := New(h, testConfig(), Hooks{})

	e.UploadQueued("alice")
	_, err := e.Check("alice")
	require.NoError(t, err)

	require.Equal(t, []string{"alice", "alice"}, h.unbans)
	require.Equal(t, []string{"alice", "alice"}, h.unignores)
	require.Equal(t, 1, h.countLogs("User alice is okay"))
}

func TestUnblock(t *testing.T) {
	h := newFakeHost()
	h.blockList["1.2.3.4"] = "bob"
	e := New(h, testConfig(), Hooks{})

	found, err := e.Unblock("1.2.3.4")
	require.NoError(t, err)
	require.True(t, found)
	require.Empty(t, h.blockList)
	require.Equal(t, 1, h.persisted)

	found, err = e.Unblock("1.2.3.4")
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, 1, h.persisted)
}

func TestUnblockAndBlockDoNotRace(t *testing.T) {
	h := newFakeHost()
	cfg := testConfig()
	cfg.BlockIpOnBan = true
	e := New(h, cfg, Hooks{})

	h.blockList["9.9.9.9"] = "old"
	h.stats["bob"] = Stats{Files: 1, Folders: 1}
	e.UserResolved("bob", "1.2.3.4", 1, "")
	e.UploadQueued("bob")

	var wg gosync.WaitGroup
	var unblockErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		e.UploadFinished("bob")
	}()
	go func() {
		defer wg.Done()
		_, unblockErr = e.Unblock("9.9.9.9")
	}()
	wg.Wait()

	require.NoError(t, unblockErr)

	require.Equal(t, map[string]string{"1.2.3.4": "bob"}, h.blockList)
}
