package extract

// lexicon holds AFINN-style valence scores for common opinion words.
var lexicon = map[string]int{
	"amazing": 4, "awesome": 4, "brilliant": 4, "excellent": 3, "fantastic": 4, "outstanding": 5,
	"superb": 5, "wonderful": 4, "great": 3, "love": 3, "loved": 3, "beautiful": 3, "best": 3,
	"happy": 3, "joy": 3, "delight": 3, "glad": 3, "good": 3, "nice": 3, "like": 2, "helpful": 2,
	"success": 2, "successful": 3, "win": 4, "benefit": 2, "benefits": 2, "improve": 2, "improved": 2,
	"positive": 2, "safe": 1, "calm": 2, "hope": 2, "interesting": 2, "fun": 4, "friendly": 2,
	"rich": 2, "strong": 2, "easy": 1, "popular": 3, "thank": 2, "thanks": 2, "welcome": 2,
	"bad": -3, "worse": -3, "worst": -3, "terrible": -3, "awful": -3, "horrible": -3, "hate": -3,
	"sad": -2, "angry": -3, "fear": -2, "afraid": -2, "anxious": -2, "nervous": -2, "nervousness": -2,
	"stress": -1, "stressed": -2, "problem": -2, "problems": -2, "fail": -2, "failed": -2, "failure": -2,
	"risk": -2, "danger": -2, "dangerous": -2, "pain": -2, "poor": -2, "wrong": -2, "war": -2,
	"crisis": -3, "disaster": -2, "kill": -3, "killed": -3, "death": -2, "loss": -3, "lost": -3,
	"difficult": -1, "hard": -1, "weak": -2, "boring": -3, "broken": -1, "bug": -2, "issues": -1,
	"error": -2, "errors": -2, "crash": -2, "worry": -3, "worried": -3, "ugly": -3, "sick": -2,
}

// negators flip the valence of the word that follows them.
var negators = map[string]struct{}{
	"not": {}, "no": {}, "never": {}, "dont": {}, "doesnt": {}, "isnt": {}, "cant": {}, "wont": {},
}

// Sentiment sums lexicon valences over the text. A negator directly before
// a scored word flips its sign.
func Sentiment(text string) float64 {
	score := 0
	negate := false
	for _, w := range words(text) {
		if _, ok := negators[w]; ok {
			negate = true
			continue
		}
		if v, ok := lexicon[w]; ok {
			if negate {
				v = -v
			}
			score += v
		}
		negate = false
	}
	return float64(score)
}
