package remote

import (
	"fmt"
	"strings"
)

const authorizedKeys = `"$HOME/.ssh/authorized_keys"`

// AppendAuthorizedKey adds key to the login user's authorized_keys unless an
// identical line is already present. Existing lines are never rewritten.
func AppendAuthorizedKey(key string) string {
	k := Quote(strings.TrimSpace(key))
	return strings.Join([]string{
		`mkdir -p "$HOME/.ssh"`,
		`chmod 700 "$HOME/.ssh"`,
		`touch ` + authorizedKeys,
		`chmod 600 ` + authorizedKeys,
		`if [ -s ` + authorizedKeys + ` ] && [ "$(tail -c1 ` + authorizedKeys + ` | wc -l)" -eq 0 ]; then echo >> ` + authorizedKeys + `; fi`,
		`(grep -qxF -- ` + k + ` ` + authorizedKeys + ` || echo ` + k + ` >> ` + authorizedKeys + `)`,
	}, " && ")
}

// HasAuthorizedKey exits 0 only when key is present as a whole line.
func HasAuthorizedKey(key string) string {
	return `grep -qxF -- ` + Quote(strings.TrimSpace(key)) + ` ` + authorizedKeys
}

// RemoveAuthorizedKey deletes the first line equal to key; later copies stay.
// A missing file or missing line is not an error.
func RemoveAuthorizedKey(key string) string {
	k := Quote(strings.TrimSpace(key))
	return `f=` + authorizedKeys + `; ` +
		`if [ -f "$f" ]; then ` +
		`K=` + k + ` awk '!done && $0 == ENVIRON["K"] { done = 1; next } { print }' "$f" > "$f.vito" || { rm -f "$f.vito"; exit 1; }; ` +
		`cat "$f.vito" > "$f" && rm -f "$f.vito"; ` +
		`fi`
}

// DumpDatabase writes a gzip-compressed dump of name to out.
func DumpDatabase(engine, name, out string) (string, error) {
	var dump string
	switch engine {
	case "mysql", "mariadb":
		dump = "mysqldump --single-transaction --quick " + Quote(name)
	case "postgresql":
		dump = "sudo -u postgres pg_dump " + Quote(name)
	default:
		return "", fmt.Errorf("unsupported database engine %q", engine)
	}
	return pipefail(mkdirFor(out) + " && " + dump + " | gzip -c > " + Quote(out)), nil
}

// ArchiveHome writes a gzip-compressed tarball of /home to out.
func ArchiveHome(out string) string {
	return pipefail(mkdirFor(out) + " && tar -czf " + Quote(out) + " -C / home")
}

// RemoveFile deletes path, succeeding if it does not exist.
func RemoveFile(path string) string {
	return "rm -f " + Quote(path)
}

func mkdirFor(out string) string {
	dir := out
	if i := strings.LastIndex(out, "/"); i > 0 {
		dir = out[:i]
	}
	return "mkdir -p " + Quote(dir)
}

func pipefail(script string) string {
	return "bash -o pipefail -c " + Quote(script)
}
