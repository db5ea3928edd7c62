package profanity

// defaultBlockList is the built-in list. Entries are matched as whole words.
var defaultBlockList = []string{
	"fck", "sht", "asshole", "bitch", "cunt", "damn", "piss", "bastard", "whore",
	"motherfucker", "cocksucker", "nigger", "kike", "spic", "chink", "gook", "wop",
	"raghead", "jap", "cracker", "redneck", "porn", "sexy", "fellatio", "cum",
	"vagina", "penis", "clit", "dick", "blowjob", "tits", "boobs", "handjob", "cock",
	"retard", "spaz", "cripple", "lesser", "wanker", "slut", "hoe", "weed", "cocaine",
	"meth", "heroin", "pot", "blunt", "bong", "drunk", "shitfaced", "pig", "ugly",
	"nigga", "niga", "niggas", "niggaz", "niger",
}

// DefaultWords returns a copy of the built-in block list.
func DefaultWords() []string {
	out := make([]string, len(defaultBlockList))
	copy(out, defaultBlockList)
	return out
}
