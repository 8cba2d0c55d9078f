package stdlib

import (
	"testing"

	"github.com/aspen-lang/aspen/pkg/value"
)

func callNative(t *testing.T, mod value.Value, name string, args ...value.Value) (value.Value, error) {
	t.Helper()
	md, ok := value.ModuleOf(mod)
	if !ok {
		t.Fatalf("%s: not a module", name)
	}
	key, _ := value.KeyFromValue(value.NewString(name))
	fnVal, ok := value.TableGet(value.Object(md.Vars), key)
	if !ok {
		t.Fatalf("module has no function %q", name)
	}
	nf, ok := value.NativeFunctionOf(fnVal)
	if !ok {
		t.Fatalf("%q is not a native function", name)
	}
	return nf.Call(args)
}

func TestCryptoHashesAndBase64(t *testing.T) {
	mod := cryptoModule()

	sum, err := callNative(t, mod, "sha256", value.NewString("hello"))
	if err != nil {
		t.Fatalf("sha256: %v", err)
	}
	if s, _ := value.StringValue(sum); s != "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824" {
		t.Errorf("sha256(hello) = %q, want known digest", s)
	}

	encoded, err := callNative(t, mod, "base64Encode", value.NewString("aspen"))
	if err != nil {
		t.Fatalf("base64Encode: %v", err)
	}
	decoded, err := callNative(t, mod, "base64Decode", encoded)
	if err != nil {
		t.Fatalf("base64Decode: %v", err)
	}
	if s, _ := value.StringValue(decoded); s != "aspen" {
		t.Errorf("base64 round trip = %q, want %q", s, "aspen")
	}
}

func TestCryptoAESRoundTrip(t *testing.T) {
	mod := cryptoModule()
	key, err := callNative(t, mod, "aesGenerateKey")
	if err != nil {
		t.Fatalf("aesGenerateKey: %v", err)
	}

	ciphertext, err := callNative(t, mod, "aesEncrypt", value.NewString("top secret"), key)
	if err != nil {
		t.Fatalf("aesEncrypt: %v", err)
	}
	plaintext, err := callNative(t, mod, "aesDecrypt", ciphertext, key)
	if err != nil {
		t.Fatalf("aesDecrypt: %v", err)
	}
	if s, _ := value.StringValue(plaintext); s != "top secret" {
		t.Errorf("aes round trip = %q, want %q", s, "top secret")
	}
}

func TestCompressRoundTrip(t *testing.T) {
	mod := compressModule()
	gz, err := callNative(t, mod, "gzip", value.NewString("repeat repeat repeat"))
	if err != nil {
		t.Fatalf("gzip: %v", err)
	}
	out, err := callNative(t, mod, "gunzip", gz)
	if err != nil {
		t.Fatalf("gunzip: %v", err)
	}
	if s, _ := value.StringValue(out); s != "repeat repeat repeat" {
		t.Errorf("gzip round trip = %q", s)
	}
}

func TestJSONParse(t *testing.T) {
	mod := jsonModule()
	parsed, err := callNative(t, mod, "parse", value.NewString(`{"a":1,"b":[1,2,3]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	key, _ := value.KeyFromValue(value.NewString("a"))
	a, ok := value.TableGet(parsed, key)
	if !ok {
		t.Fatalf("expected key \"a\" in parsed table")
	}
	if n, ok := a.AsInt(); !ok || n != 1 {
		t.Errorf("parsed[\"a\"] = %v, want 1", a)
	}
}

func TestRegexpMatchFindReplace(t *testing.T) {
	mod := regexpModule()
	matched, err := callNative(t, mod, "match", value.NewString(`\d+`), value.NewString("abc123"))
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if b, _ := matched.AsBool(); !b {
		t.Errorf("expected match")
	}

	replaced, err := callNative(t, mod, "replace", value.NewString(`\d+`), value.NewString("abc123"), value.NewString("#"))
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if s, _ := value.StringValue(replaced); s != "abc#" {
		t.Errorf("replace = %q, want %q", s, "abc#")
	}
}

func TestRandomIntWithinBounds(t *testing.T) {
	mod := randomModule()
	for i := 0; i < 20; i++ {
		v, err := callNative(t, mod, "int", value.Int(5), value.Int(10))
		if err != nil {
			t.Fatalf("random.int: %v", err)
		}
		n, _ := v.AsInt()
		if n < 5 || n > 10 {
			t.Fatalf("random.int out of bounds: %d", n)
		}
	}
}

func TestTimeFormatAndFields(t *testing.T) {
	mod := timeModule()
	ts := value.Int(0) // 1970-01-01T00:00:00Z
	year, err := callNative(t, mod, "year", ts)
	if err != nil {
		t.Fatalf("year: %v", err)
	}
	if n, _ := year.AsInt(); n != 1970 {
		t.Errorf("year(0) = %d, want 1970", n)
	}

	formatted, err := callNative(t, mod, "format", ts, value.NewString("date"))
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	if s, _ := value.StringValue(formatted); s != "1970-01-01" {
		t.Errorf("format(0, date) = %q, want 1970-01-01", s)
	}
}

func TestModulesRegistersEveryName(t *testing.T) {
	mods := Modules()
	for _, name := range []string{"std/http", "std/crypto", "std/compress", "std/fs", "std/json", "std/regexp", "std/random", "std/time"} {
		if _, ok := mods[name]; !ok {
			t.Errorf("Modules() missing %q", name)
		}
	}
}
