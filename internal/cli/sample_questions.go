package cli

import "theory-battle/internal/domain"

func opts(texts ...string) []domain.Option {
	out := make([]domain.Option, len(texts))
	for i, t := range texts {
		out[i] = domain.Option{Text: t}
	}
	return out
}

// sampleQuestions is the built-in bank used when no database is configured
// and by `migrate --seed`.
func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:            "alertness-001",
			Text:          "Before making a U-turn in the road, you should",
			Options:       opts("Give an arm signal as well as using your indicators", "Signal so that other drivers can slow down for you", "Look over your shoulder for a final check", "Select a higher gear than normal"),
			CorrectAnswer: 2,
			Category:      "Alertness",
			Explanation:   "A final look over your shoulder covers the blind spots your mirrors miss.",
		},
		{
			ID:            "attitude-001",
			Text:          "What's the minimum time gap you should leave between you and the vehicle in front on a dry road?",
			Options:       opts("One second", "Two seconds", "Three seconds", "Four seconds"),
			CorrectAnswer: 1,
			Category:      "Attitude",
			Explanation:   "Leave at least a two-second gap in good conditions, doubled on wet roads.",
		},
		{
			ID:            "safety-001",
			Text:          "What's the legal minimum tread depth for car tyres?",
			Options:       opts("1 mm", "1.6 mm", "2.5 mm", "4 mm"),
			CorrectAnswer: 1,
			Category:      "Safety and your vehicle",
			Explanation:   "Car tyres need at least 1.6 mm across the central three-quarters of the tread.",
		},
		{
			ID:            "margins-001",
			Text:          "How much longer can stopping distances be on an icy road?",
			Options:       opts("Two times", "Three times", "Five times", "Ten times"),
			CorrectAnswer: 3,
			Category:      "Safety margins",
			Explanation:   "On ice stopping distances can be up to ten times longer than on dry roads.",
		},
		{
			ID:            "hazard-001",
			Text:          "You see a pedestrian with a white stick and red band. What does this mean?",
			Options:       opts("They're disabled", "They're deaf", "They're deaf and blind", "They're blind"),
			CorrectAnswer: 2,
			Category:      "Hazard awareness",
			Explanation:   "A white stick with a red band means the person is both deaf and blind.",
		},
		{
			ID:            "vulnerable-001",
			Text:          "At a zebra crossing, what should you do when a pedestrian is waiting to cross?",
			Options:       opts("Flash your headlights to tell them to cross", "Be prepared to stop and let them cross", "Sound your horn", "Wave them across"),
			CorrectAnswer: 1,
			Category:      "Vulnerable road users",
			Explanation:   "Slow down and be ready to stop; never signal pedestrians to cross.",
		},
		{
			ID:            "motorway-001",
			Text:          "What's the national speed limit for cars on a motorway?",
			Options:       opts("50 mph", "60 mph", "70 mph", "80 mph"),
			CorrectAnswer: 2,
			Category:      "Motorway rules",
			Explanation:   "Cars and motorcycles may travel at up to 70 mph on motorways.",
		},
		{
			ID:            "motorway-002",
			Text:          "What colour are the reflective studs between a motorway and its slip road?",
			Options:       opts("Amber", "White", "Green", "Red"),
			CorrectAnswer: 2,
			Category:      "Motorway rules",
			Explanation:   "Green studs mark the edge of the carriageway at lay-bys and slip roads.",
		},
		{
			ID:            "rules-001",
			Text:          "What's the national speed limit for cars on a single carriageway road?",
			Options:       opts("50 mph", "60 mph", "70 mph", "40 mph"),
			CorrectAnswer: 1,
			Category:      "Rules of the road",
			Explanation:   "The national speed limit on single carriageways is 60 mph for cars.",
		},
		{
			ID:            "signs-001",
			Text:          "What shape is a give way sign?",
			Options:       opts("Octagon", "Circle", "Inverted triangle", "Rectangle"),
			CorrectAnswer: 2,
			Category:      "Road and traffic signs",
			Explanation:   "Give way is the only sign shaped as an upside-down triangle.",
		},
		{
			ID:            "signs-002",
			Text:          "What does a sign with a brown background show?",
			Options:       opts("Tourist directions", "Primary roads", "Motorway routes", "Minor routes"),
			CorrectAnswer: 0,
			Category:      "Road and traffic signs",
			Explanation:   "Brown signs direct drivers to tourist attractions.",
		},
		{
			ID:            "documents-001",
			Text:          "How old must a car be before it needs its first MOT certificate?",
			Options:       opts("One year", "Three years", "Five years", "Seven years"),
			CorrectAnswer: 1,
			Category:      "Documents",
			Explanation:   "Cars need an MOT once they are three years old.",
		},
		{
			ID:            "incidents-001",
			Text:          "At an incident, what should you do first for a casualty who isn't breathing?",
			Options:       opts("Find out their name", "Keep them warm", "Give them something to drink", "Open their airway and start chest compressions"),
			CorrectAnswer: 3,
			Category:      "Incidents, accidents and emergencies",
			Explanation:   "Check the airway then start CPR; every second counts.",
		},
		{
			ID:            "loading-001",
			Text:          "Who's responsible for making sure a vehicle isn't overloaded?",
			Options:       opts("The driver of the vehicle", "The owner of the items being carried", "The licensing authority", "The person who loaded the vehicle"),
			CorrectAnswer: 0,
			Category:      "Vehicle loading",
			Explanation:   "The driver is legally responsible for the load.",
		},
	}
}
