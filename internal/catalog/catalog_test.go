package catalog

import (
	"strings"
	"testing"
)

func TestMemoryStoreLookup(t *testing.T) {
	s := NewMemoryStore(SeedTherapists(), SeedTopics())

	if got := len(s.Therapists()); got != 7 {
		t.Fatalf("len(Therapists()) = %d, want 7", got)
	}
	if got := len(s.Topics()); got != 8 {
		t.Fatalf("len(Topics()) = %d, want 8", got)
	}

	th, ok := s.TherapistByID("dr-sarah")
	if !ok {
		t.Fatalf("TherapistByID(dr-sarah) not found")
	}
	if th.Name != "Dr. Sarah" {
		t.Fatalf("Name = %q, want %q", th.Name, "Dr. Sarah")
	}

	if _, ok := s.TherapistByID("nobody"); ok {
		t.Fatalf("TherapistByID(nobody) = found, want missing")
	}

	topic, ok := s.TopicByID("grief")
	if !ok || topic.Name != "Grief & Loss" {
		t.Fatalf("TopicByID(grief) = %+v, %v", topic, ok)
	}
}

func TestIsPlaceholderPersonaRef(t *testing.T) {
	cases := []struct {
		ref  string
		want bool
	}{
		{"REPLACE_WITH_YOUR_PERSONA_ID_1", true},
		{"pREPLACEme", true},
		{"", false},
		{"p4f8a2b1c9d", false},
	}
	for _, tc := range cases {
		if got := IsPlaceholderPersonaRef(tc.ref); got != tc.want {
			t.Fatalf("IsPlaceholderPersonaRef(%q) = %v, want %v", tc.ref, got, tc.want)
		}
	}
}

func TestGreetingMentionsTopic(t *testing.T) {
	th := Therapist{Name: "Dr. Sarah", Title: "Licensed Clinical Psychologist", Specialties: []string{"Anxiety Disorders"}, Approach: "CBT"}
	topic := Topic{Name: "Anxiety & Stress", Description: "Managing anxiety, stress, and overwhelming feelings"}

	withTopic := Greeting(th, &topic)
	if !strings.Contains(withTopic, "anxiety & stress") {
		t.Fatalf("greeting %q missing lowercased topic name", withTopic)
	}

	without := Greeting(th, nil)
	if !strings.Contains(without, "Dr. Sarah") || strings.Contains(without, "anxiety & stress") {
		t.Fatalf("topicless greeting %q unexpected", without)
	}
}

func TestConversationalContextIncludesSpecialtiesAndTopic(t *testing.T) {
	th := Therapist{Name: "Dr. Marcus", Title: "Licensed Trauma Specialist", Specialties: []string{"Trauma Therapy", "EMDR"}, Approach: "EMDR & Trauma-Informed Care"}
	topic := Topic{Name: "Trauma & PTSD", Description: "Healing from traumatic experiences and PTSD"}

	ctx := ConversationalContext(th, &topic)
	for _, want := range []string{"Dr. Marcus", "Trauma Therapy, EMDR", "Trauma & PTSD"} {
		if !strings.Contains(ctx, want) {
			t.Fatalf("context missing %q: %s", want, ctx)
		}
	}
}
