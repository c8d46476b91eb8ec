package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           browserd API
// @version         1.0
// @description     OpenAI-compatible chat completion API backed by a single automated browser session.
//
// @contact.name   browserd maintainers
// @contact.url    https://github.com/your-org/browserd
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
