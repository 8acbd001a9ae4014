package web

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/feeds"
	"github.com/nounce/nounced/social"
	"github.com/nounce/nounced/util"
)

// GetRSS renders the explore feed as RSS so the public timeline can be
// followed without an account.
func GetRSS(conf *util.AppConfig, f *social.Feeds) (string, error) {
	summaries, err := f.GetExploreFeed(uuid.Nil, 0, 50)
	if err != nil {
		return "", err
	}

	link := fmt.Sprintf("http://%s:%d/rss", conf.Conf.Host, conf.Conf.HttpPort)

	feed := &feeds.Feed{
		Title:       fmt.Sprintf("%s explore feed", util.Name),
		Link:        &feeds.Link{Href: link},
		Description: "most liked posts across the network",
		Created:     time.Now(),
	}

	var feedItems []*feeds.Item
	for _, s := range summaries {
		author := s.AuthorName
		if author == "" {
			author = s.AuthorWallet
		}
		feedItems = append(feedItems,
			&feeds.Item{
				Id:      s.Id.String(),
				Title:   s.CreatedAt.Format(util.DateTimeFormat()),
				Link:    &feeds.Link{Href: fmt.Sprintf("%s/%s", conf.Content.GatewayUrl, s.ContentId)},
				Content: s.Caption,
				Author:  &feeds.Author{Name: author},
				Created: s.CreatedAt,
			})
	}

	feed.Items = feedItems
	return feed.ToRss()
}
