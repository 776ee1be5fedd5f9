package service

import (
	"math/rand"
	"strings"
	"sync"
	"time"
)

type conciergeTopic struct {
	name      string
	keywords  []string
	responses []string
}

// Topics are checked in order; the first topic with a keyword contained in the message wins.
var conciergeTopics = []conciergeTopic{
	{
		name:     "booking",
		keywords: []string{"book", "session", "reserve"},
		responses: []string{
			"I can help you with booking! You can use the 'Book Session' tab to select your preferred date and time. Would you like me to walk you through it?",
			"To book a session, navigate to the 'Book Session' tab, select your date on the calendar, then choose your preferred time slot. Your hours will be automatically deducted from your monthly allocation.",
		},
	},
	{
		name:     "hours",
		keywords: []string{"hour", "time", "allocation"},
		responses: []string{
			"You can view your hour balance in the 'My Hours' tab. Remember, unused hours don't roll over to the next month, so plan your sessions accordingly!",
			"Your hours are tracked in real-time. Check the 'My Hours' section for a detailed breakdown of used, scheduled, and available hours.",
		},
	},
	{
		name:     "guests",
		keywords: []string{"guest", "visitor", "bring"},
		responses: []string{
			"All guests must be pre-registered at least 24 hours before your session. Use the 'Guests' tab to register them. Don't forget, your tier determines your guest limit!",
			"To register guests, go to the 'Guests' tab, select your upcoming session, and enter your guest's information. They'll need to show valid ID upon arrival.",
		},
	},
	{
		name:     "rules",
		keywords: []string{"rule", "policy", "allowed"},
		responses: []string{
			"Our house rules are designed to protect every member's experience. You can review them in the 'House Rules' tab. Key points: no walk-ins, pre-register guests, maintain privacy at all times.",
			"The most important rules to remember: always book in advance, register guests 24 hours before, never share our address, and respect other members' privacy.",
		},
	},
	{
		name:     "greetings",
		keywords: []string{"hello", "hi", "hey"},
		responses: []string{
			"Hello! I'm your Torch Concierge. How can I assist you today?",
			"Welcome back! What can I help you with?",
			"Good to see you! How may I be of service?",
		},
	},
}

var conciergeFallback = conciergeTopic{
	name: "general",
	responses: []string{
		"I'm here to help! You can ask me about booking sessions, checking your hours, registering guests, or understanding our house rules.",
		"Feel free to explore the portal. If you need any assistance, I'm always here. Is there something specific you'd like help with?",
	},
}

// KeywordConcierge answers member questions from a fixed keyword table.
type KeywordConcierge struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewKeywordConcierge(rnd *rand.Rand) *KeywordConcierge {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &KeywordConcierge{rnd: rnd}
}

// Topic returns the name of the topic a message falls under.
func (c *KeywordConcierge) Topic(text string) string {
	return matchTopic(text).name
}

func (c *KeywordConcierge) Respond(text string) string {
	topic := matchTopic(text)
	c.mu.Lock()
	i := c.rnd.Intn(len(topic.responses))
	c.mu.Unlock()
	return topic.responses[i]
}

func matchTopic(text string) conciergeTopic {
	lower := strings.ToLower(text)
	for _, t := range conciergeTopics {
		for _, kw := range t.keywords {
			if strings.Contains(lower, kw) {
				return t
			}
		}
	}
	return conciergeFallback
}
