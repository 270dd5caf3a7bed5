package ssrf

import "testing"

func TestCheckURL_RejectsLoopback(t *testing.T) {
	if err := CheckURL("http://127.0.0.1:9999/webhook"); err == nil {
		t.Fatal("expected loopback target to be rejected")
	}
}

func TestCheckURL_RejectsPrivateRanges(t *testing.T) {
	cases := []string{
		"http://10.0.0.5/hook",
		"http://172.16.0.1/hook",
		"http://192.168.1.1/hook",
		"http://169.254.169.254/latest/meta-data",
	}
	for _, u := range cases {
		if err := CheckURL(u); err == nil {
			t.Errorf("CheckURL(%q) = nil, want rejection", u)
		}
	}
}

func TestCheckURL_RejectsNonHTTPScheme(t *testing.T) {
	if err := CheckURL("file:///etc/passwd"); err == nil {
		t.Fatal("expected non-http(s) scheme to be rejected")
	}
}

func TestCheckURL_AllowsPublicIPLiteral(t *testing.T) {
	if err := CheckURL("https://8.8.8.8/.well-known/did.json"); err != nil {
		t.Errorf("CheckURL(8.8.8.8) = %v, want nil", err)
	}
}
