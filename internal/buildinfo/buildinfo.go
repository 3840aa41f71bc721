package buildinfo

// Set via -ldflags at release time; zero values mean a dev build.
var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

func Info() map[string]string {
    return map[string]string{
        "version":  Version,
        "commit":   Commit,
        "built_at": BuiltAt,
    }
}
