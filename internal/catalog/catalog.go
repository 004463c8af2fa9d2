package catalog

import "strings"

// Therapist captures the selectable persona attributes exposed to the frontend.
// PersonaRef is the opaque identifier the remote conversational-video API
// expects; everything else is presentation.
type Therapist struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	Specialty   string   `json:"specialty"`
	Specialties []string `json:"specialties"`
	Description string   `json:"description"`
	Avatar      string   `json:"avatar"`
	PersonaRef  string   `json:"persona_ref"`
	Experience  string   `json:"experience"`
	Approach    string   `json:"approach"`
}

// Topic is a selectable discussion focus for a session.
type Topic struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Color       string `json:"color"`
}

const placeholderPersonaPrefix = "REPLACE_WITH_YOUR_PERSONA_ID"

// IsPlaceholderPersonaRef detects the shipped sentinel persona ids so a
// misconfigured catalog fails locally instead of burning a network call.
func IsPlaceholderPersonaRef(ref string) bool {
	return strings.HasPrefix(ref, placeholderPersonaPrefix) || strings.Contains(ref, "REPLACE")
}

// Store exposes catalog retrieval for HTTP handlers and the controller.
type Store interface {
	Therapists() []Therapist
	TherapistByID(id string) (Therapist, bool)
	Topics() []Topic
	TopicByID(id string) (Topic, bool)
}

// MemoryStore implements Store with in-memory slices.
type MemoryStore struct {
	therapists []Therapist
	topics     []Topic
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied entries.
func NewMemoryStore(therapists []Therapist, topics []Topic) *MemoryStore {
	return &MemoryStore{
		therapists: append([]Therapist(nil), therapists...),
		topics:     append([]Topic(nil), topics...),
	}
}

func (s *MemoryStore) Therapists() []Therapist {
	return append([]Therapist(nil), s.therapists...)
}

func (s *MemoryStore) TherapistByID(id string) (Therapist, bool) {
	for _, item := range s.therapists {
		if item.ID == id {
			return item, true
		}
	}
	return Therapist{}, false
}

func (s *MemoryStore) Topics() []Topic {
	return append([]Topic(nil), s.topics...)
}

func (s *MemoryStore) TopicByID(id string) (Topic, bool) {
	for _, item := range s.topics {
		if item.ID == id {
			return item, true
		}
	}
	return Topic{}, false
}

// Greeting builds the custom opening line the remote persona speaks first.
func Greeting(t Therapist, topic *Topic) string {
	if topic != nil {
		return "Hello! I'm " + t.Name + ", and I'm here to help you with " +
			strings.ToLower(topic.Name) + ". I understand you'd like to talk about " +
			strings.ToLower(topic.Description) + ". This is a safe space for you to share " +
			"whatever is on your mind. How are you feeling today?"
	}
	return "Hello! I'm " + t.Name + ". I'm here to provide you with a safe, supportive " +
		"space to talk about whatever is on your mind. How are you feeling today?"
}

// ConversationalContext builds the behavioral context sent with the create call.
func ConversationalContext(t Therapist, topic *Topic) string {
	var b strings.Builder
	b.WriteString("You are " + t.Name + ", a " + t.Title + " specializing in " +
		strings.Join(t.Specialties, ", ") + ". Your approach is " + t.Approach + ". ")
	if topic != nil {
		b.WriteString("The client wants to discuss " + topic.Name + ": " + topic.Description + ". ")
	}
	b.WriteString("Provide compassionate, professional therapy while maintaining appropriate " +
		"boundaries. Listen actively, ask thoughtful questions, and offer evidence-based guidance.")
	return b.String()
}
