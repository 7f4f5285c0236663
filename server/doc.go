/*
Package server assembles the full hestia serving stack from external configuration.

A typical main looks like:

	v := server.NewViper("myapp")
	flagSet := pflag.NewFlagSet("myapp", pflag.ContinueOnError)
	server.ConfigureFlagSet("myapp", flagSet)
	if err := server.ParseAndBind(v, flagSet, nil); err != nil {
		// handle the error
	}

	if err := v.ReadInConfig(); err != nil {
		// handle the error
	}

	c, err := server.Unmarshal(v)
	// ...

	s, err := (&server.Builder{Configuration: c}).Build()
	// ...

	var (
		waitGroup sync.WaitGroup
		shutdown  = make(chan struct{})
		signals   = make(chan os.Signal, 1)
	)

	signal.Notify(signals)
	if err := s.Run(&waitGroup, shutdown); err != nil {
		// handle the error
	}

	server.SignalWait(s.Logger(), signals, os.Interrupt)
	close(shutdown)
	waitGroup.Wait()
*/
package server
