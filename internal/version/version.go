package version

// Version contains the application version information.
// This should be set via build-time ldflags in production:
// go build -ldflags "-X git.home.luguber.info/inful/sitebuilder/internal/version.Version=v1.2.0".
var Version = "unknown"

// BuildInfo contains additional build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Less reports whether semantic version a sorts before b.
// Versions are compared segment-wise; missing segments count as zero and
// non-numeric segments count as zero. A leading "v" is ignored.
func Less(a, b string) bool {
	as := segments(a)
	bs := segments(b)
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		var sa, sb uint64
		if i < len(as) {
			sa = as[i]
		}
		if i < len(bs) {
			sb = bs[i]
		}
		if sa != sb {
			return sa < sb
		}
	}
	return false
}

func segments(v string) []uint64 {
	if len(v) > 0 && (v[0] == 'v' || v[0] == 'V') {
		v = v[1:]
	}
	var out []uint64
	var cur uint64
	seen := false
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == '.' {
			if seen || i == len(v) {
				out = append(out, cur)
			}
			cur = 0
			seen = false
			continue
		}
		if v[i] >= '0' && v[i] <= '9' {
			cur = cur*10 + uint64(v[i]-'0')
			seen = true
		}
	}
	return out
}
