// Copyright (C) 2024 XELIS
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

package main

import (
	"leechban/log"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/webhook"
)

var discordWebhook webhook.Client

func startDiscord(url string) {
	if url == "" {
		return
	}

	var err error
	discordWebhook, err = webhook.NewWithURL(url)
	if err != nil {
		log.Warn("invalid discord webhook:", err)
		discordWebhook = nil
		return
	}
	log.Info("Discord webhook enabled")
}

// hooks run with the engine lock held, so the webhook is called in the background
func notifyBan(username string, files, folders int) {
	if discordWebhook == nil {
		return
	}

	go func() {
		_, err := discordWebhook.CreateEmbeds([]discord.Embed{discord.NewEmbedBuilder().
			SetTitlef("Banned leecher %s", username).
			SetDescriptionf("Sharing %d files in %d folders", files, folders).
			Build(),
		})
		if err != nil {
			log.Warn(err)
			return
		}

		log.Debug("webhook submit successfully")
	}()
}
