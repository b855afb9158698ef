package results

import (
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/net/websocket"
)

func TestViewer(t *testing.T) {
	l := NewLog()
	l.Append(&Record{Phase: "AE_train", Step: 1})
	l.Append(&Record{Phase: "Gen_train", Step: 2})

	server := httptest.NewServer((&Viewer{Log: l}).Handler())
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?from=1"
	ws, err := websocket.Dial(url, "", "http://localhost/")
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()

	var r Record
	if err := websocket.JSON.Receive(ws, &r); err != nil {
		t.Fatal(err)
	}
	if r.Phase != "Gen_train" || r.Step != 2 {
		t.Errorf("unexpected record: %+v", r)
	}

	l.Append(&Record{Phase: "AE_eval/tf", Step: 3})
	if err := websocket.JSON.Receive(ws, &r); err != nil {
		t.Fatal(err)
	}
	if r.Phase != "AE_eval/tf" || r.Step != 3 {
		t.Errorf("unexpected record: %+v", r)
	}
	l.Close()
}

func TestViewerPhase(t *testing.T) {
	l := NewLog()
	l.Append(&Record{Phase: "AE_train", Step: 1})
	l.Append(&Record{Phase: "Gen_train", Step: 1})
	l.Append(&Record{Phase: "AE_train", Step: 2})

	server := httptest.NewServer((&Viewer{Log: l}).Handler())
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?phase=AE_train&from=1"
	ws, err := websocket.Dial(url, "", "http://localhost/")
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()

	var r Record
	if err := websocket.JSON.Receive(ws, &r); err != nil {
		t.Fatal(err)
	}
	if r.Phase != "AE_train" || r.Step != 2 {
		t.Errorf("unexpected record: %+v", r)
	}

	l.Append(&Record{Phase: "Gen_train", Step: 2})
	l.Append(&Record{Phase: "AE_train", Step: 3})
	if err := websocket.JSON.Receive(ws, &r); err != nil {
		t.Fatal(err)
	}
	if r.Phase != "AE_train" || r.Step != 3 {
		t.Errorf("unexpected record: %+v", r)
	}
	l.Close()
}
