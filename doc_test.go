package relay_test

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ambiyansyah-risyal/relay"
)

func ExampleCompile() {
	echo := relay.TransportFunc(func(_ context.Context, req *relay.Request) (*relay.Response, error) {
		raw := fmt.Sprintf(`{"data":{"method":%q,"url":%q}}`, req.Method, req.FullURL())
		return &relay.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Raw:        []byte(raw),
		}, nil
	})

	client, err := relay.Compile(relay.Schema{
		"comments": {
			"get": {Path: "/posts/:post/comments/:id?", Transforms: []relay.Transform{relay.Field("data", "url")}},
		},
	}, relay.Config{APIURL: "https://api.example.com"}, relay.WithTransport(echo))
	if err != nil {
		fmt.Println(err)
		return
	}

	get, _ := client.Lookup("comments_get")
	url, err := get.Do(context.Background(), relay.Params{"post": 7, "sort": "desc", "draft": false})
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(url)
	// Output: https://api.example.com/posts/7/comments?sort=desc
}

func ExampleMethod_Deferred() {
	echo := relay.TransportFunc(func(_ context.Context, req *relay.Request) (*relay.Response, error) {
		return &relay.Response{StatusCode: http.StatusOK, Raw: []byte(req.Header.Get("X-Trace"))}, nil
	})

	client := relay.New(relay.Config{APIURL: "https://api.example.com"}, relay.WithTransport(echo))
	list, _ := client.AddMethod(relay.Descriptor{Resource: "comments", Method: "list", Path: "/comments"})

	handle, _ := list.Deferred(nil)
	call, _ := handle.SetHeader("X-Trace", "t-1").Send(context.Background())
	body, _ := call.Wait()
	fmt.Println(body)
	// Output: t-1
}
