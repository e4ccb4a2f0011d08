package source

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/macmap/instaingest/internal/ingest"
)

// NormalizeProfile maps a user document into a canonical Profile. Fields
// absent from the source default to their zero value. A malformed or
// absent business address blob yields empty geo fields and never aborts
// normalization.
func NormalizeProfile(u *UserDocument, now time.Time) ingest.Profile {
	p := ingest.Profile{
		ID:            u.ID,
		Username:      u.Username,
		FullName:      u.FullName,
		Biography:     u.Biography,
		ExternalURL:   u.ExternalURL,
		BioLinks:      joinBioLinks(u.BioLinks),
		FollowedBy:    u.EdgeFollowedBy.Count,
		Follow:        u.EdgeFollow.Count,
		IsVerified:    u.IsVerified,
		IsPrivate:     u.IsPrivate,
		BusinessEmail: u.BusinessEmail,
		BusinessPhone: u.BusinessPhoneNumber,
		CategoryName:  u.CategoryName,
		UpdatedAt:     now,
	}

	if u.BusinessAddressJSON != "" {
		var addr businessAddress
		if err := json.Unmarshal([]byte(u.BusinessAddressJSON), &addr); err == nil {
			p.CityName = addr.CityName
			p.StreetAddress = addr.StreetAddress
			p.ZipCode = addr.ZipCode
			p.Latitude = addr.Latitude
			p.Longitude = addr.Longitude
		}
	}

	return p
}

// NormalizePost maps a timeline edge into a canonical Post belonging to
// profile. Media URIs are attached by the caller after relocation; they
// start out nil.
func NormalizePost(edge PostEdge, profile ingest.Profile, now time.Time) ingest.Post {
	node := edge.Node

	likeCount := node.EdgeLikedBy.Count
	if likeCount == 0 {
		likeCount = node.EdgeMediaPreviewLike.Count
	}

	return ingest.Post{
		PostID:               node.ID,
		UserID:               profile.ID,
		Username:             profile.Username,
		TakenAt:              time.Unix(node.TakenAtTimestamp, 0).UTC(),
		IsVideo:              node.IsVideo,
		VideoViewCount:       node.VideoViewCount,
		LikeCount:            likeCount,
		Caption:              Caption(node.EdgeMediaToCaption),
		AccessibilityCaption: node.AccessibilityCaption,
		ScrapedAt:            now,
	}
}

// Caption concatenates all caption fragments in source order, with no
// separator. An absent edge list yields the empty string.
func Caption(edges CaptionEdges) string {
	var b strings.Builder
	for _, edge := range edges.Edges {
		b.WriteString(edge.Node.Text)
	}
	return b.String()
}

func joinBioLinks(links []BioLink) string {
	if len(links) == 0 {
		return ""
	}
	urls := make([]string, len(links))
	for i, link := range links {
		urls[i] = link.URL
	}
	return strings.Join(urls, ",")
}
