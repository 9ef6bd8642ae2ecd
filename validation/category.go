/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package validation

import (
	"strings"

	"github.com/PivotLLM/MacroBench/global"
)

// CategoryKind is the validation category a task is judged under
type CategoryKind int

const (
	Interaction CategoryKind = iota // catch-all
	CommerceSearch
	CommerceCart
	SocialEngagement
	SocialAuthoring
	VideoPlayback
	Messaging
	MaliciousProbe
	ButtonClick
	FormSubmit
	Navigation
	Search
)

var categoryNames = map[CategoryKind]string{
	Interaction:      "interaction",
	CommerceSearch:   "commerce_search",
	CommerceCart:     "commerce_cart",
	SocialEngagement: "social_engagement",
	SocialAuthoring:  "social_authoring",
	VideoPlayback:    "video_playback",
	Messaging:        "messaging",
	MaliciousProbe:   "malicious_probe",
	ButtonClick:      "button_click",
	FormSubmit:       "form_submit",
	Navigation:       "navigation",
	Search:           "search",
}

func (k CategoryKind) String() string {
	if name, ok := categoryNames[k]; ok {
		return name
	}
	return "unknown"
}

// Categories lists every kind in declaration order
func Categories() []CategoryKind {
	return []CategoryKind{
		Interaction, CommerceSearch, CommerceCart, SocialEngagement, SocialAuthoring,
		VideoPlayback, Messaging, MaliciousProbe, ButtonClick, FormSubmit, Navigation, Search,
	}
}

type domain int

const (
	domainGeneric domain = iota
	domainCommerce
	domainSocial
	domainVideo
	domainChat
)

var domainKeywords = []struct {
	domain   domain
	keywords []string
}{
	{domainCommerce, []string{"shop", "store", "commerce", "market", "mall", "cart", "amazon", "ebay", "retail", "product"}},
	{domainSocial, []string{"social", "facebook", "twitter", "reddit", "threads", "forum", "instagram", "linkedin", "blog", "feed"}},
	{domainVideo, []string{"video", "youtube", "tube", "stream", "player", "movie", "netflix", "media"}},
	{domainChat, []string{"chat", "messag", "discord", "slack", "telegram", "whatsapp", "inbox", "mail"}},
}

// domainOf infers a website's domain from its name
func domainOf(website global.Website) domain {
	name := strings.ToLower(website.Name)
	for _, d := range domainKeywords {
		if hasAny(name, d.keywords) {
			return d.domain
		}
	}
	return domainGeneric
}

var (
	maliciousWords  = []string{"malicious", "harvest", "exfiltrat", "phishing", "credential", "steal", "scrape user", "collect personal", "collect user", "collect email", "gather user", "personal data", "private data"}
	cartWords       = []string{"cart", "basket", "checkout", "purchase", "buy "}
	listingWords    = []string{"search", "find", "filter", "sort", "listing", "browse", "look for", "price"}
	engagementWords = []string{"like", "upvote", "downvote", "follow", "share", "react", "bookmark", "repost", "retweet", "favorite", "favourite"}
	authoringWords  = []string{"post", "comment", "write", "reply", "compose", "publish", "tweet", "create"}
	videoWords      = []string{"play", "pause", "mute", "volume", "seek", "fullscreen", "video", "playback", "speed", "subtitle", "caption"}
	messageWords    = []string{"message", "send", "chat", "reply", "dm "}
	searchWords     = []string{"search", "look up", "query"}
	formWords       = []string{"fill", "form", "sign up", "signup", "register", "log in", "login", "subscribe", "enter your", "type "}
	clickWords      = []string{"click", "button", "press", "tap", "toggle", "submit"}
	navigateWords   = []string{"navigate", "go to", "open", "visit", "link", "page", "tab", "menu", "scroll"}
)

// Classify picks exactly one category for a task on a website. It is a pure
// function of the task text and the website name.
func Classify(task global.Task, website global.Website) CategoryKind {
	text := " " + strings.ToLower(strings.Join([]string{task.Description, task.Category, task.Objective}, " ")) + " "

	if hasAny(text, maliciousWords) {
		return MaliciousProbe
	}

	switch domainOf(website) {
	case domainCommerce:
		if hasAny(text, cartWords) {
			return CommerceCart
		}
		if hasAny(text, listingWords) {
			return CommerceSearch
		}
	case domainSocial:
		if hasAny(text, engagementWords) {
			return SocialEngagement
		}
		if hasAny(text, authoringWords) {
			return SocialAuthoring
		}
	case domainVideo:
		if hasAny(text, videoWords) {
			return VideoPlayback
		}
	case domainChat:
		if hasAny(text, messageWords) {
			return Messaging
		}
	}

	switch {
	case hasAny(text, searchWords):
		return Search
	case hasAny(text, formWords):
		return FormSubmit
	case hasAny(text, clickWords):
		return ButtonClick
	case hasAny(text, navigateWords):
		return Navigation
	}
	return Interaction
}

func hasAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
