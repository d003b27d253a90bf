package codephrase

// dictionary is the fixed 256-entry lowercase ASCII word list code phrases
// are drawn from (spec §4.10/§6). Index i corresponds to word i in a
// generated phrase.
var dictionary = [256]string{
	"ace", "ago", "aim", "air", "ant", "any", "ape", "app",
	"arc", "are", "arm", "art", "ash", "ask", "ate", "awe",
	"bad", "bar", "bat", "bay", "bee", "bet", "bin", "bit",
	"boa", "bow", "box", "bud", "bus", "buy", "cab", "can",
	"cap", "car", "cat", "cot", "cow", "cub", "cue", "cup",
	"cut", "dam", "day", "den", "dew", "dim", "dip", "dog",
	"dot", "dry", "dub", "due", "dug", "ear", "eat", "ebb",
	"eel", "egg", "elf", "elm", "end", "era", "erg", "eve",
	"eye", "fad", "fan", "far", "fat", "fed", "fee", "few",
	"fig", "fin", "fit", "fix", "fly", "foe", "fog", "for",
	"fox", "fry", "fun", "fur", "gag", "gap", "gas", "gel",
	"gem", "get", "gig", "gin", "gnu", "got", "gum", "gun",
	"gut", "gym", "hag", "ham", "hat", "hay", "hem", "hen",
	"hex", "hid", "him", "hip", "hit", "hop", "hot", "how",
	"hub", "hug", "hut", "ice", "icy", "ill", "imp", "ink",
	"ion", "ire", "irk", "its", "ivy", "jab", "jam", "jar",
	"jaw", "jay", "jet", "jib", "jig", "job", "jog", "jot",
	"joy", "jug", "jut", "keg", "ken", "key", "kid", "kin",
	"kit", "lab", "lad", "lag", "lap", "law", "lax", "lay",
	"led", "leg", "let", "lid", "lie", "lip", "lit", "log",
	"lot", "low", "lug", "mad", "man", "map", "mat", "may",
	"men", "met", "mid", "mix", "mob", "mod", "moo", "mop",
	"mow", "mud", "mug", "nab", "nag", "nap", "nay", "net",
	"new", "nip", "nod", "nor", "not", "now", "nub", "nun",
	"nut", "oak", "oar", "oat", "odd", "off", "oil", "old",
	"one", "orb", "ore", "our", "out", "owe", "owl", "pad",
	"pal", "pan", "pat", "paw", "pay", "pea", "peg", "pen",
	"pet", "pew", "pie", "pig", "pin", "pit", "pod", "pop",
	"pot", "pow", "pub", "pug", "pun", "pup", "put", "qat",
	"quo", "rag", "ram", "ran", "rap", "rat", "raw", "ray",
	"red", "rib", "rid", "rig", "rim", "rip", "rob", "rod",
	"rot", "row", "rub", "rug", "rum", "run", "rut", "sad",
}
