package notify

import "testing"

func TestSMSMessage(t *testing.T) {
	got := SMSMessage("https://study.example.org", "Tiger-Plaza-Acorn-Lemon")
	want := "Please click to join Snowball Study: https://study.example.org/redeem?coupon=Tiger-Plaza-Acorn-Lemon" +
		" You will be compensated by the study team. Thank you!"
	if got != want {
		t.Fatalf("SMSMessage = %q, want %q", got, want)
	}
}
