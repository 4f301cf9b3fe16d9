/*
Package gemini implements the Gemini and Titan protocols: request and
response framing, a ServeMux and Handler interface modeled on
net/http, a static file handler, upload handling, and a client with
trust-on-first-use certificate verification.

Fetch a Gemini URL with a Client, backed by a trust-on-first-use store:

	store, err := tofu.Open("known_hosts.db")
	if err != nil {
		// handle error
	}
	client := &gemini.Client{TOFU: store, AllowFirstUse: true}
	resp, err := client.Get(context.Background(), "gemini://example.com")
	if err != nil {
		// handle error
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)

A changed certificate fingerprint is reported as a distinct error
rather than silently trusted:

	var changed *tofu.CertificateChangedError
	if errors.As(err, &changed) {
		// ask the user before retrying
	}

Server is a Gemini server built around a Handler, the same way
net/http is built around http.Handler:

	mux := &gemini.ServeMux{}
	mux.Handle("/", &gemini.FileHandler{DocumentRoot: "/var/gemini"})

	server := &gemini.Server{
		Addr:        ":1965",
		Certificate: cert,
		Handler:     mux,
	}
	if err := server.ListenAndServe(); err != nil {
		// handle error
	}

Middleware composes with Chain:

	handler := gemini.Chain(mux,
		gemini.AccessControl(cfg.AccessControl),
		gemini.RateLimit(cfg.RateLimit),
		gemini.CertificateAuth(cfg.CertificateAuth),
	)

Titan uploads are handled the same way, registered on a titan://
pattern (a pattern without a scheme matches gemini requests only);
the Server's Titan field must be set for titan requests to reach it:

	mux.Handle("titan:///upload/", &gemini.TitanHandler{
		UploadDir:     "/var/gemini/uploads",
		MaxUploadSize: 10 << 20,
	})
*/
package gemini
