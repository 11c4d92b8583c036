package classifier

// Threshold separates real from fake scores. Scores strictly below it are
// fake.
const Threshold = 0.5

type Label string

const (
	LabelReal Label = "Real"
	LabelFake Label = "Fake"
)

// Decision is the verdict for one face. Confidence is always the raw score,
// for both labels.
type Decision struct {
	Label      Label
	Confidence float64
}

func Decide(s Score) Decision {
	label := LabelReal
	if float64(s) < Threshold {
		label = LabelFake
	}
	return Decision{Label: label, Confidence: float64(s)}
}

func (d Decision) IsDeepfake() bool {
	return d.Label == LabelFake
}

// Caption is the text drawn next to the face box.
func (d Decision) Caption() string {
	if d.IsDeepfake() {
		return "Deep Fake Detected"
	}
	return "Real Face"
}
