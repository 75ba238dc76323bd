package notes

import "strings"

const introSeedName = "intro_note"

const introTitle = "Welcome to Notelytic! Unlock the Power of AI in Note-Taking"

var introMarkdown = strings.Join([]string{
	"Welcome to Notelytic, your personal AI-powered note-taking assistant! 🌟",
	"With Notelytic, you can:",
	"✨ **Create or Edit Notes with AI Assistance**  \nGet inspired and let AI help you write or refine your thoughts.",
	"🎨 **Choose Custom Themes**  \nPersonalize your notes with beautiful themes that suit your style.",
	"📅 **Organize Effortlessly**  \nEfficiently categorize and find your notes, so you never lose track.",
	"Get started now and unlock a new level of productivity and creativity with Notelytic!",
}, "\n\n")

// IntroNote returns the welcome note seeded under IntroNoteID.
func IntroNote() Record {
	return Record{
		Title:   introTitle,
		Content: RenderMarkdown(introMarkdown),
	}
}
