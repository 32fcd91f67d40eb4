// Package enrich performs best-effort fetches of context that is not in the
// raw webhook payload: the post/media a comment hangs off, and the public
// profile of a message sender. Failures degrade to id-only stubs; enrichment
// never blocks ingestion.
package enrich

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/unibox/internal/store"
)

const maxImages = 5

// PostContext describes the post or media object a comment thread targets.
// Stub is set when the fetch failed and only ids are known.
type PostContext struct {
	PostID    string
	Caption   string
	Permalink string
	ImageURLs []string
	Stub      bool
}

// SenderProfile is the public profile of a message sender.
type SenderProfile struct {
	Name   string
	Avatar string
	Stub   bool
}

// ObjectFetcher is the slice of the Graph client the enricher needs.
type ObjectFetcher interface {
	GetObject(ctx context.Context, objectID, fields, accessToken string, dst any) error
}

// Enricher fetches post and profile context through the Graph API.
type Enricher struct {
	client ObjectFetcher
}

func New(client ObjectFetcher) *Enricher {
	return &Enricher{client: client}
}

// Meta attaches a fetched post context to conversation metadata.
func (p PostContext) Meta() store.ConversationMeta {
	return store.ConversationMeta{
		PostID:    p.PostID,
		Caption:   p.Caption,
		Permalink: p.Permalink,
		ImageURLs: p.ImageURLs,
	}
}

// FetchPost fetches caption, permalink and up to five image URLs for the
// commented post. One fetch per physical event regardless of fan-out width:
// the result is identical whichever tenant's credential performs it, so the
// caller reuses any one binding's token and passes the result by value to
// every fan-out leg.
func (e *Enricher) FetchPost(ctx context.Context, platform store.Platform, postID, accessToken string) PostContext {
	stub := PostContext{PostID: postID, Stub: true}
	if postID == "" {
		return stub
	}

	fields := "message,permalink_url,full_picture,attachments{media,subattachments}"
	if platform == store.PlatformInstagram {
		fields = "caption,permalink,media_url,media_type,children{media_url}"
	}

	var obj struct {
		// facebook post shape
		Message     string `json:"message"`
		PermalinkFB string `json:"permalink_url"`
		FullPicture string `json:"full_picture"`
		Attachments struct {
			Data []struct {
				Media struct {
					Image struct {
						Src string `json:"src"`
					} `json:"image"`
				} `json:"media"`
				Subattachments struct {
					Data []struct {
						Media struct {
							Image struct {
								Src string `json:"src"`
							} `json:"image"`
						} `json:"media"`
					} `json:"data"`
				} `json:"subattachments"`
			} `json:"data"`
		} `json:"attachments"`
		// instagram media shape
		Caption     string `json:"caption"`
		PermalinkIG string `json:"permalink"`
		MediaURL    string `json:"media_url"`
		Children    struct {
			Data []struct {
				MediaURL string `json:"media_url"`
			} `json:"data"`
		} `json:"children"`
	}

	if err := e.client.GetObject(ctx, postID, fields, accessToken, &obj); err != nil {
		slog.Warn("enrich.post_degraded", "platform", platform, "post", postID, "error", err)
		return stub
	}

	out := PostContext{PostID: postID}
	switch platform {
	case store.PlatformInstagram:
		out.Caption = obj.Caption
		out.Permalink = obj.PermalinkIG
		if obj.MediaURL != "" {
			out.ImageURLs = append(out.ImageURLs, obj.MediaURL)
		}
		for _, ch := range obj.Children.Data {
			if len(out.ImageURLs) >= maxImages {
				break
			}
			if ch.MediaURL != "" {
				out.ImageURLs = append(out.ImageURLs, ch.MediaURL)
			}
		}
	default:
		out.Caption = obj.Message
		out.Permalink = obj.PermalinkFB
		if obj.FullPicture != "" {
			out.ImageURLs = append(out.ImageURLs, obj.FullPicture)
		}
		for _, att := range obj.Attachments.Data {
			if src := att.Media.Image.Src; src != "" && len(out.ImageURLs) < maxImages {
				out.ImageURLs = appendUnique(out.ImageURLs, src)
			}
			for _, sub := range att.Subattachments.Data {
				if len(out.ImageURLs) >= maxImages {
					break
				}
				if src := sub.Media.Image.Src; src != "" {
					out.ImageURLs = appendUnique(out.ImageURLs, src)
				}
			}
		}
	}
	return out
}

// FetchProfile fetches the sender's display name and avatar. Degrades to an
// id-labelled stub on any failure.
func (e *Enricher) FetchProfile(ctx context.Context, platform store.Platform, userID, accessToken string) SenderProfile {
	stub := SenderProfile{Name: userID, Stub: true}
	if userID == "" {
		return SenderProfile{Stub: true}
	}

	var obj struct {
		Name       string `json:"name"`
		FirstName  string `json:"first_name"`
		LastName   string `json:"last_name"`
		Username   string `json:"username"`
		ProfilePic string `json:"profile_pic"`
	}
	fields := "first_name,last_name,name,profile_pic"
	if platform == store.PlatformInstagram {
		fields = "name,username,profile_pic"
	}
	if err := e.client.GetObject(ctx, userID, fields, accessToken, &obj); err != nil {
		slog.Warn("enrich.profile_degraded", "platform", platform, "user", userID, "error", err)
		return stub
	}

	name := obj.Name
	if name == "" && (obj.FirstName != "" || obj.LastName != "") {
		name = joinName(obj.FirstName, obj.LastName)
	}
	if name == "" {
		name = obj.Username
	}
	if name == "" {
		name = userID
	}
	return SenderProfile{Name: name, Avatar: obj.ProfilePic}
}

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	default:
		return first + " " + last
	}
}

func appendUnique(urls []string, u string) []string {
	for _, existing := range urls {
		if existing == u {
			return urls
		}
	}
	return append(urls, u)
}
