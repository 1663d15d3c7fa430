package session

// Command is one candidate or operator action. Handle dispatches on the concrete type.
type Command interface {
	name() string
}

type SubmitProfile struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Position   string `json:"position"`
	Experience string `json:"experience"`
	Skills     string `json:"skills"`
}

type SubmitIntroduction struct {
	Transcript string `json:"transcript"`
}

type SkipIntroduction struct{}

// SubmitAnswer answers the current question. When Expected is set it must equal the
// current index.
type SubmitAnswer struct {
	Answer   string `json:"answer"`
	Expected *int   `json:"expected_index,omitempty"`
}

// SkipQuestion declines the current question. Timers set Expected so that a late expiry
// cannot skip the next question.
type SkipQuestion struct {
	Expected *int `json:"expected_index,omitempty"`
}

type SubmitSecondary struct {
	Response string `json:"response"`
}

type SkipSecondary struct{}

type Finalize struct{}

type Close struct{}

type Restart struct{}

func (SubmitProfile) name() string      { return "submit_profile" }
func (SubmitIntroduction) name() string { return "submit_introduction" }
func (SkipIntroduction) name() string   { return "skip_introduction" }
func (SubmitAnswer) name() string       { return "submit_answer" }
func (SkipQuestion) name() string       { return "skip_question" }
func (SubmitSecondary) name() string    { return "submit_secondary" }
func (SkipSecondary) name() string      { return "skip_secondary" }
func (Finalize) name() string           { return "finalize" }
func (Close) name() string              { return "close" }
func (Restart) name() string            { return "restart" }

// CommandName is used for logs and error payloads
func CommandName(c Command) string {
	return c.name()
}
