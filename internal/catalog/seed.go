package catalog

// SeedTherapists provides the default persona roster. The persona refs ship as
// sentinels; deployments point them at real personas in their own account.
func SeedTherapists() []Therapist {
	return []Therapist{
		{
			ID:          "dr-sarah",
			Name:        "Dr. Sarah",
			Title:       "Licensed Clinical Psychologist",
			Specialty:   "Anxiety & Depression",
			Specialties: []string{"Anxiety Disorders", "Depression", "Cognitive Behavioral Therapy", "Stress Management"},
			Description: "Warm and empathetic approach with expertise in anxiety and depression using evidence-based CBT techniques.",
			Avatar:      "👩‍⚕️",
			PersonaRef:  "REPLACE_WITH_YOUR_PERSONA_ID_1",
			Experience:  "10+ years",
			Approach:    "Cognitive Behavioral Therapy (CBT)",
		},
		{
			ID:          "dr-marcus",
			Name:        "Dr. Marcus",
			Title:       "Licensed Trauma Specialist",
			Specialty:   "Trauma & EMDR",
			Specialties: []string{"Trauma Therapy", "EMDR", "PTSD", "Complex Trauma"},
			Description: "Specialized in trauma-informed care using EMDR and other evidence-based approaches for healing.",
			Avatar:      "👨‍⚕️",
			PersonaRef:  "REPLACE_WITH_YOUR_PERSONA_ID_2",
			Experience:  "12+ years",
			Approach:    "EMDR & Trauma-Informed Care",
		},
		{
			ID:          "dr-elena",
			Name:        "Dr. Elena Rodriguez",
			Title:       "Licensed Marriage & Family Therapist",
			Specialty:   "Relationships & Family",
			Specialties: []string{"Couples Therapy", "Family Therapy", "Communication", "Relationship Issues"},
			Description: "Expert in relationship dynamics and family systems with a compassionate, solution-focused approach.",
			Avatar:      "👩‍🏫",
			PersonaRef:  "REPLACE_WITH_YOUR_PERSONA_ID_3",
			Experience:  "8+ years",
			Approach:    "Emotionally Focused Therapy (EFT)",
		},
		{
			ID:          "dr-aisha",
			Name:        "Dr. Aisha Patel",
			Title:       "Holistic Wellness Therapist",
			Specialty:   "Holistic Wellness",
			Specialties: []string{"Holistic Therapy", "Mind-Body Connection", "Stress Management", "Wellness Coaching"},
			Description: "Integrative approach combining traditional therapy with holistic wellness practices for complete healing.",
			Avatar:      "🧘‍♀️",
			PersonaRef:  "REPLACE_WITH_YOUR_PERSONA_ID_4",
			Experience:  "7+ years",
			Approach:    "Integrative Holistic Therapy",
		},
		{
			ID:          "zen-master-kai",
			Name:        "Zen Master Kai",
			Title:       "Mindfulness & Meditation Guide",
			Specialty:   "Mindfulness & Meditation",
			Specialties: []string{"Mindfulness", "Meditation", "Stress Reduction", "Inner Peace"},
			Description: "Ancient wisdom meets modern psychology. Guiding you to inner peace through mindfulness and meditation practices.",
			Avatar:      "🧘‍♂️",
			PersonaRef:  "REPLACE_WITH_YOUR_PERSONA_ID_5",
			Experience:  "15+ years",
			Approach:    "Mindfulness-Based Stress Reduction",
		},
		{
			ID:          "coach-alex",
			Name:        "Coach Alex",
			Title:       "Peak Performance Coach",
			Specialty:   "Peak Performance",
			Specialties: []string{"Performance Coaching", "Goal Achievement", "Motivation", "Success Mindset"},
			Description: "High-energy coaching focused on unlocking your potential and achieving peak performance in all areas.",
			Avatar:      "💪",
			PersonaRef:  "REPLACE_WITH_YOUR_PERSONA_ID_6",
			Experience:  "6+ years",
			Approach:    "Performance Psychology & Coaching",
		},
		{
			ID:          "sophia-wisdom",
			Name:        "Sophia Wisdom",
			Title:       "Life Transition Specialist",
			Specialty:   "Life Transitions",
			Specialties: []string{"Life Transitions", "Career Changes", "Personal Growth", "Identity Development"},
			Description: "Guiding individuals through major life changes with wisdom, support, and practical strategies.",
			Avatar:      "🌟",
			PersonaRef:  "REPLACE_WITH_YOUR_PERSONA_ID_7",
			Experience:  "9+ years",
			Approach:    "Narrative Therapy & Life Coaching",
		},
	}
}

// SeedTopics provides the default discussion topics.
func SeedTopics() []Topic {
	return []Topic{
		{ID: "anxiety", Name: "Anxiety & Stress", Description: "Managing anxiety, stress, and overwhelming feelings", Icon: "😰", Color: "bg-blue-100 text-blue-800"},
		{ID: "depression", Name: "Depression & Mood", Description: "Working through depression, low mood, and emotional challenges", Icon: "😔", Color: "bg-purple-100 text-purple-800"},
		{ID: "relationships", Name: "Relationships", Description: "Improving communication and relationship dynamics", Icon: "💕", Color: "bg-pink-100 text-pink-800"},
		{ID: "trauma", Name: "Trauma & PTSD", Description: "Healing from traumatic experiences and PTSD", Icon: "🛡️", Color: "bg-red-100 text-red-800"},
		{ID: "career", Name: "Career & Work", Description: "Professional development and work-life balance", Icon: "💼", Color: "bg-green-100 text-green-800"},
		{ID: "self-esteem", Name: "Self-Esteem", Description: "Building confidence and self-worth", Icon: "✨", Color: "bg-yellow-100 text-yellow-800"},
		{ID: "life-transitions", Name: "Life Transitions", Description: "Navigating major life changes and transitions", Icon: "🌟", Color: "bg-indigo-100 text-indigo-800"},
		{ID: "grief", Name: "Grief & Loss", Description: "Processing grief, loss, and bereavement", Icon: "🕊️", Color: "bg-gray-100 text-gray-800"},
	}
}
