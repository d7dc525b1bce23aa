package agent

import "fmt"

// turnMessages holds the user-facing strings the orchestrator substitutes for
// protocol outcomes. Failures always yield one of these, never raw error
// text.
type turnMessages struct {
	stillProcessing string
	stillWaiting    string // takes the waited seconds
	failure         string
	timeout         string
	cancelled       string
}

var messagesByLanguage = map[string]turnMessages{
	"en": {
		stillProcessing: "I'm still working on your request. Reply with a number of seconds to wait, or anything else to keep waiting.",
		stillWaiting:    "Still no answer after %d seconds. Reply with a number to wait again, or anything else to keep waiting.",
		failure:         "Sorry, something went wrong while preparing your answer. Please try again.",
		timeout:         "Sorry, the assistant took too long to answer. Please try again.",
		cancelled:       "Sorry, your request was cancelled before an answer was ready.",
	},
	"it": {
		stillProcessing: "Sto ancora elaborando la tua richiesta. Rispondi con un numero di secondi da attendere, o con qualsiasi altra cosa per continuare ad aspettare.",
		stillWaiting:    "Ancora nessuna risposta dopo %d secondi. Rispondi con un numero per attendere di nuovo, o con qualsiasi altra cosa per continuare ad aspettare.",
		failure:         "Mi dispiace, qualcosa è andato storto durante la preparazione della risposta. Riprova.",
		timeout:         "Mi dispiace, l'assistente ha impiegato troppo tempo per rispondere. Riprova.",
		cancelled:       "Mi dispiace, la tua richiesta è stata annullata prima che la risposta fosse pronta.",
	},
}

func messagesForLanguage(language string) turnMessages {
	if messages, ok := messagesByLanguage[language]; ok {
		return messages
	}
	return messagesByLanguage["en"]
}

func (m turnMessages) stillWaitingAfter(seconds int) string {
	return fmt.Sprintf(m.stillWaiting, seconds)
}
